// Package submit parses the resource plugin's XML output into submission
// parameter sets and cross-joins them against a session's declared zones,
// per spec.md §4.3.
package submit

// Param is one independently submittable request to the agent fabric.
type Param struct {
	RMS           string
	ConfigFile    string
	EnvFile       string
	Zone          string
	AgentGroup    string
	NCores        int
	NumAgents     int
	NumSlots      int
	RequiredSlots int
	MinAgents     int
}

// ZoneGroup is one count/ncores/agentGroup bucket declared for a zone.
type ZoneGroup struct {
	Count          int
	NCores         int
	AgentGroupName string
}

// Zone bundles the defaults and declared groups for one named resource pool.
type Zone struct {
	Name       string
	ConfigFile string
	EnvFile    string
	Groups     []ZoneGroup
}

// NMinInfo is the minimum acceptable replica count for one collection
// template, taken from the Controller's nmin configuration
// (config.NMinRule) before any topology is parsed.
type NMinInfo struct {
	N      int
	NMin   int
	NCores int
	Zone   string
}
