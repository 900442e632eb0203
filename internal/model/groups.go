package model

// Group tags the constraint block responsible for an entity.
type Group string

const (
	NoGroup                  Group = ""
	BusGroup                 Group = "BusBlock"
	ConverterGroup           Group = "ConverterBlock"
	LinkGroup                Group = "LinkBlock"
	CHPGroup                 Group = "ExtractionTurbineCHPBlock"
	OffsetConverterGroup     Group = "OffsetConverterBlock"
	StorageGroup             Group = "GenericStorageBlock"
	InvestStorageGroup       Group = "GenericInvestmentStorageBlock"
	SimpleFlowGroup          Group = "SimpleFlowBlock"
	InvestFlowGroup          Group = "InvestmentFlowBlock"
	NonConvexFlowGroup       Group = "NonConvexFlowBlock"
	NonConvexInvestFlowGroup Group = "InvestNonConvexFlowBlock"
)

// Groups partitions the members of an energy system by constraint block.
// Members keep insertion order; node groups hold Nodes, flow groups Flows.
type Groups struct {
	Nodes map[Group][]Node
	Flows map[Group][]*Flow
}
