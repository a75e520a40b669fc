package topology

import (
	"encoding/xml"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/odcproject/odc/internal/odcerr"
)

// xmlTopology mirrors the topology builder's output format (spec.md §6):
// CTopoGroup with an optional N multiplier, CTopoCollection nesting
// CTopoTask, per-element requirements, and odc_nmin_<Name> variables.
type xmlTopology struct {
	XMLName xml.Name    `xml:"topology"`
	Vars    []xmlVar    `xml:"var"`
	Groups  []xmlGroup  `xml:"group"`
	Tasks   []xmlTask   `xml:"task"`
}

type xmlVar struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlGroup struct {
	Name        string          `xml:"name,attr"`
	N           int             `xml:"n,attr"`
	Collections []xmlCollection `xml:"collection"`
	Tasks       []xmlTask       `xml:"task"`
}

type xmlCollection struct {
	Name        string         `xml:"name,attr"`
	Requirement xmlRequirement `xml:"requirement"`
	Tasks       []xmlTask      `xml:"task"`
}

type xmlRequirement struct {
	Zone                string `xml:"zone,attr"`
	NCores              int    `xml:"ncores,attr"`
	AgentGroup          string `xml:"agentGroup,attr"`
	MaxInstancesPerHost int    `xml:"maxInstancesPerHost,attr"`
	WnName              string `xml:"wnName,attr"`
}

type xmlTask struct {
	Name       string `xml:"name,attr"`
	Path       string `xml:"path,attr"`
	Host       string `xml:"host,attr"`
	AgentID    string `xml:"agentId,attr"`
	SlotID     string `xml:"slotId,attr"`
	Expendable bool   `xml:"expendable,attr"`
}

// Build parses a topology XML document into an immutable Index. It is the
// only constructor for Index: replacement on Update happens by calling
// Build again and swapping the whole object (spec.md invariant 4), never
// by mutating a built Index in place.
func Build(xmlDoc string) (*Index, error) {
	var doc xmlTopology
	if err := xml.Unmarshal([]byte(xmlDoc), &doc); err != nil {
		return nil, odcerr.Newf(odcerr.TopologyFailed, "parsing topology XML: %v", err)
	}

	nminVars := map[string]int{}
	for _, v := range doc.Vars {
		if name, ok := strings.CutPrefix(v.Name, "odc_nmin_"); ok {
			n, err := strconv.Atoi(v.Value)
			if err != nil {
				return nil, odcerr.Newf(odcerr.TopologyFailed, "invalid %s: %v", v.Name, err)
			}
			nminVars[name] = n
		}
	}

	idx := &Index{
		tasksByID:   map[string]Task{},
		collections: map[string]Collection{},
		agentGroups: map[string]AgentGroup{},
	}
	templateInstanceCount := map[string]int{}
	zoneSeen := map[string]bool{}
	agentGroupMaxNCores := map[string]int{}
	agentGroupZone := map[string]string{}

	for _, g := range doc.Groups {
		n := g.N
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			groupLabel := replicaLabel(g.Name, i, n)
			for _, c := range g.Collections {
				collID := replicaLabel(c.Name, i, n)
				templateInstanceCount[c.Name]++

				var taskIDs []string
				for _, t := range c.Tasks {
					task := buildTask(t, i, n, groupLabel+"/"+collID, collID)
					idx.tasks = append(idx.tasks, task)
					idx.tasksByID[task.ID] = task
					taskIDs = append(taskIDs, task.ID)
				}

				zoneSeen[c.Requirement.Zone] = true
				if c.Requirement.AgentGroup != "" {
					if c.Requirement.NCores > agentGroupMaxNCores[c.Requirement.AgentGroup] {
						agentGroupMaxNCores[c.Requirement.AgentGroup] = c.Requirement.NCores
					}
					agentGroupZone[c.Requirement.AgentGroup] = c.Requirement.Zone
				}

				idx.collections[collID] = Collection{
					ID:         collID,
					Zone:       c.Requirement.Zone,
					AgentGroup: c.Requirement.AgentGroup,
					NCores:     c.Requirement.NCores,
					TaskIDs:    taskIDs,
				}
			}
			for _, t := range g.Tasks {
				task := buildTask(t, i, n, groupLabel, "")
				idx.tasks = append(idx.tasks, task)
				idx.tasksByID[task.ID] = task
				idx.standaloneTasks = append(idx.standaloneTasks, task.ID)
			}
		}
	}
	for _, t := range doc.Tasks {
		task := buildTask(t, 0, 1, "", "")
		idx.tasks = append(idx.tasks, task)
		idx.tasksByID[task.ID] = task
		idx.standaloneTasks = append(idx.standaloneTasks, task.ID)
	}

	// Attach n/nMin from odc_nmin_<TemplateName> vars: n is the total
	// instance count of that collection template across all group
	// replicas.
	for templateName, nmin := range nminVars {
		total := templateInstanceCount[templateName]
		for id, coll := range idx.collections {
			if templateName == stripReplicaSuffix(id) {
				coll.N = total
				coll.NMin = nmin
				idx.collections[id] = coll
			}
		}
	}
	for id, coll := range idx.collections {
		if coll.N == 0 {
			coll.N = templateInstanceCount[stripReplicaSuffix(id)]
			idx.collections[id] = coll
		}
	}

	for name, ncores := range agentGroupMaxNCores {
		idx.agentGroups[name] = AgentGroup{Name: name, Zone: agentGroupZone[name], NCores: ncores}
	}
	for z := range zoneSeen {
		if z != "" {
			idx.zones = append(idx.zones, z)
		}
	}

	if err := validate(idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func buildTask(t xmlTask, replica, n int, pathPrefix, collectionID string) Task {
	id := replicaLabel(t.Name, replica, n)
	p := t.Path
	if p == "" {
		if pathPrefix != "" {
			p = pathPrefix + "/" + t.Name
		} else {
			p = t.Name
		}
	}
	p = strings.ReplaceAll(p, "{i}", strconv.Itoa(replica))
	return Task{
		ID:           id,
		Path:         p,
		Host:         t.Host,
		AgentID:      t.AgentID,
		SlotID:       t.SlotID,
		CollectionID: collectionID,
		Expendable:   t.Expendable,
	}
}

// replicaLabel suffixes name with its replica index when the containing
// group has a multiplicity > 1; a single-instance group keeps the bare
// template name.
func replicaLabel(name string, i, n int) string {
	if n == 1 {
		return name
	}
	return fmt.Sprintf("%s_%d", name, i)
}

func stripReplicaSuffix(id string) string {
	if idx := strings.LastIndex(id, "_"); idx >= 0 {
		if _, err := strconv.Atoi(id[idx+1:]); err == nil {
			return id[:idx]
		}
	}
	return id
}

func validate(idx *Index) error {
	for _, t := range idx.tasks {
		if t.CollectionID != "" {
			if _, ok := idx.collections[t.CollectionID]; !ok {
				return odcerr.Newf(odcerr.TopologyFailed, "task %q references unresolvable collection %q", t.ID, t.CollectionID)
			}
		}
	}
	for id, c := range idx.collections {
		if c.NMin > c.N {
			return odcerr.Newf(odcerr.TopologyFailed, "collection %q has nMin %d > n %d", id, c.NMin, c.N)
		}
	}
	return nil
}

// pathGlobMatch reports whether pattern matches a "/"-separated path using
// shell-glob semantics per path segment.
func pathGlobMatch(pattern, p string) bool {
	ok, err := path.Match(pattern, p)
	if err == nil && ok {
		return true
	}
	// path.Match's "*" never crosses a "/", so a pattern ending in "/*"
	// matches direct children only; a pattern ending in "/**" falls back to
	// a prefix check so it also matches nested children.
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	}
	return false
}
