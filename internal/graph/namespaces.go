package graph

// Graph namespaces. Each namespace doubles as the named graph of the
// resources it owns.
const (
	NamespaceBase     = "http://base.graph.relatio.com#"
	NamespaceHighDim  = "http://highdim.graph.relatio.com#"
	NamespaceLowDim   = "http://lowdim.graph.relatio.com#"
	NamespaceSpans    = "http://spans.graph.relatio.com#"
	NamespaceWikidata = "http://wikidata.graph.relatio.com#"

	// WikidataEntity is the namespace of Wikidata's own concept IRIs.
	WikidataEntity = "http://www.wikidata.org/entity/"
)

// W3C vocabularies.
const (
	RDF  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFS = "http://www.w3.org/2000/01/rdf-schema#"
	OWL  = "http://www.w3.org/2002/07/owl#"
	SKOS = "http://www.w3.org/2004/02/skos/core#"
	XSD  = "http://www.w3.org/2001/XMLSchema#"
)

// Predicates and types used by the emitter.
const (
	RDFType        = RDF + "type"
	RDFProperty    = RDF + "Property"
	RDFSLabel      = RDFS + "label"
	RDFSClass      = RDFS + "Class"
	RDFSSubClassOf = RDFS + "subClassOf"
	RDFSSubPropOf  = RDFS + "subPropertyOf"
	RDFSDomain     = RDFS + "domain"
	RDFSRange      = RDFS + "range"
	OWLClass       = OWL + "Class"
	OWLInverseOf   = OWL + "inverseOf"
	OWLSameAs      = OWL + "sameAs"
	SKOSDefinition = SKOS + "definition"
)

// Prefixes maps namespace IRIs to the short prefix used when rendering.
// It never takes part in identity.
var Prefixes = map[string]string{
	NamespaceBase:     "",
	NamespaceHighDim:  "hd",
	NamespaceLowDim:   "ld",
	NamespaceSpans:    "sp",
	NamespaceWikidata: "wdr",
	WikidataEntity:    "wd",
	RDF:               "rdf",
	RDFS:              "rdfs",
	OWL:               "owl",
	SKOS:              "skos",
	XSD:               "xsd",
}
