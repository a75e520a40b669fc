package submit

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/odcproject/odc/internal/odcerr"
)

var recognizedKeys = map[string]bool{
	"rms": true, "configFile": true, "envFile": true, "agents": true,
	"slots": true, "requiredSlots": true, "agentGroup": true, "zone": true,
	"nCores": true,
}

// xmlNode is a generic XML tree node used to walk the plugin's output
// without a fixed schema, so unrecognized keys can be rejected explicitly
// instead of silently dropped by struct-tag unmarshaling.
type xmlNode struct {
	XMLName xml.Name
	Content string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

// Planner parses plugin stdout and cross-joins the result with a session's
// declared zones and per-collection nMin info.
type Planner struct{}

// NewPlanner returns a Planner. It holds no state.
func NewPlanner() *Planner {
	return &Planner{}
}

// Parse reads the plugin's XML stdout into an ordered list of raw
// SubmitParam records, before any zone cross-join. The document is either
// a single flat element whose children are the recognized keys, or a
// wrapper with one or more <submit> children.
func (p *Planner) Parse(xmlDoc string) ([]Param, error) {
	var root xmlNode
	if err := xml.Unmarshal([]byte(xmlDoc), &root); err != nil {
		return nil, odcerr.Newf(odcerr.ResourcePluginFailed, "parsing plugin output: %v", err)
	}

	var entryNodes []xmlNode
	for _, n := range root.Nodes {
		if n.XMLName.Local == "submit" {
			entryNodes = append(entryNodes, n)
		}
	}
	if len(entryNodes) == 0 {
		entryNodes = []xmlNode{root}
	}

	params := make([]Param, 0, len(entryNodes))
	for _, entry := range entryNodes {
		param, err := parseEntry(entry)
		if err != nil {
			return nil, err
		}
		params = append(params, param)
	}
	return params, nil
}

func parseEntry(n xmlNode) (Param, error) {
	fields := map[string]string{}
	for _, child := range n.Nodes {
		key := child.XMLName.Local
		if !recognizedKeys[key] {
			return Param{}, odcerr.Newf(odcerr.ResourcePluginFailed, "unrecognized plugin output key %q", key)
		}
		fields[key] = strings.TrimSpace(child.Content)
	}

	param := Param{
		RMS:        fields["rms"],
		ConfigFile: fields["configFile"],
		EnvFile:    fields["envFile"],
		Zone:       fields["zone"],
		AgentGroup: fields["agentGroup"],
	}
	var err error
	if param.NumAgents, err = atoiOrZero(fields["agents"]); err != nil {
		return Param{}, err
	}
	if param.NumSlots, err = atoiOrZero(fields["slots"]); err != nil {
		return Param{}, err
	}
	if param.RequiredSlots, err = atoiOrZero(fields["requiredSlots"]); err != nil {
		return Param{}, err
	}
	if param.NCores, err = atoiOrZero(fields["nCores"]); err != nil {
		return Param{}, err
	}
	return param, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, odcerr.Newf(odcerr.ResourcePluginFailed, "invalid numeric plugin field %q", s)
	}
	return n, nil
}

// CrossJoin expands each raw Param against the declared Zones and NMinInfo:
// for the zone's ZoneGroups, it fans out one Param per distinct nCores
// bucket, splitting NumAgents proportionally to each bucket's declared
// Count so the total across the fan-out equals the input NumAgents. When
// the zone is undeclared or has no groups, the raw Param passes through as
// a single entry, with ConfigFile/EnvFile defaulted from the zone,
// AgentGroup defaulted to the zone name, and MinAgents set from NMinInfo.
func (p *Planner) CrossJoin(raw []Param, zones map[string]Zone, nMinInfo map[string]NMinInfo) []Param {
	var out []Param
	for _, entry := range raw {
		zone, ok := zones[entry.Zone]
		if !ok || len(zone.Groups) == 0 {
			if entry.ConfigFile == "" {
				entry.ConfigFile = zone.ConfigFile
			}
			if entry.EnvFile == "" {
				entry.EnvFile = zone.EnvFile
			}
			if entry.AgentGroup == "" {
				entry.AgentGroup = entry.Zone
			}
			entry.MinAgents = minAgentsForZone(nMinInfo, entry.Zone)
			out = append(out, entry)
			continue
		}

		buckets := distinctNCoresBuckets(zone.Groups)
		totalCount := 0
		for _, b := range buckets {
			totalCount += b.Count
		}

		assigned := 0
		for i, b := range buckets {
			numAgents := 0
			if totalCount > 0 {
				if i == len(buckets)-1 {
					numAgents = entry.NumAgents - assigned
				} else {
					numAgents = entry.NumAgents * b.Count / totalCount
				}
			} else if i == 0 {
				numAgents = entry.NumAgents
			}
			assigned += numAgents

			cf := entry.ConfigFile
			if cf == "" {
				cf = zone.ConfigFile
			}
			ef := entry.EnvFile
			if ef == "" {
				ef = zone.EnvFile
			}
			ag := entry.AgentGroup
			if ag == "" {
				ag = b.AgentGroupName
			}
			ncores := entry.NCores
			if ncores == 0 {
				ncores = b.NCores
			}

			out = append(out, Param{
				RMS:           entry.RMS,
				ConfigFile:    cf,
				EnvFile:       ef,
				Zone:          entry.Zone,
				AgentGroup:    ag,
				NCores:        ncores,
				NumAgents:     numAgents,
				NumSlots:      entry.NumSlots,
				RequiredSlots: entry.RequiredSlots,
				MinAgents:     minAgentsForZone(nMinInfo, entry.Zone),
			})
		}
	}
	return out
}

func distinctNCoresBuckets(groups []ZoneGroup) []ZoneGroup {
	seen := map[int]int{} // ncores -> index in result
	var result []ZoneGroup
	for _, g := range groups {
		if idx, ok := seen[g.NCores]; ok {
			result[idx].Count += g.Count
			continue
		}
		seen[g.NCores] = len(result)
		result = append(result, g)
	}
	return result
}

func minAgentsForZone(nMinInfo map[string]NMinInfo, zone string) int {
	total := 0
	for _, info := range nMinInfo {
		if info.Zone == zone {
			total += info.NMin
		}
	}
	return total
}
