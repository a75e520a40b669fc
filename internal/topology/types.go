// Package topology builds the Topology Model (spec.md §4.5): an immutable,
// per-activation index of tasks, collections, groups, and their resource
// requirements, parsed once from the agent fabric's topology XML.
package topology

// Task is one topology element describing a single device to launch.
type Task struct {
	ID           string
	Path         string
	Host         string
	AgentID      string
	SlotID       string
	CollectionID string // empty if standalone
	Expendable   bool
}

// Collection is a named bundle of tasks that co-locate on one host.
type Collection struct {
	ID         string
	Zone       string
	AgentGroup string
	NCores     int
	N          int
	NMin       int
	TaskIDs    []string
}

// AgentGroup is a named subset of agents hosting a particular collection
// template, with the maximum nCores requested by any containing
// collection.
type AgentGroup struct {
	Name   string
	Zone   string
	NCores int
}

// Index is the immutable, per-activation topology index. It is built once
// by Build and never mutated afterward; Update (spec.md invariant 4)
// replaces it wholesale with a new Index rather than patching this one.
type Index struct {
	tasks           []Task
	tasksByID       map[string]Task
	collections     map[string]Collection
	standaloneTasks []string
	agentGroups     map[string]AgentGroup
	zones           []string
}

// Tasks returns every task in definition order.
func (idx *Index) Tasks() []Task {
	out := make([]Task, len(idx.tasks))
	copy(out, idx.tasks)
	return out
}

// Task looks up a task by ID.
func (idx *Index) Task(id string) (Task, bool) {
	t, ok := idx.tasksByID[id]
	return t, ok
}

// Collection looks up a collection by ID.
func (idx *Index) Collection(id string) (Collection, bool) {
	c, ok := idx.collections[id]
	return c, ok
}

// Collections returns every collection, keyed by ID.
func (idx *Index) Collections() map[string]Collection {
	out := make(map[string]Collection, len(idx.collections))
	for k, v := range idx.collections {
		out[k] = v
	}
	return out
}

// StandaloneTasks returns task IDs that belong to no collection.
func (idx *Index) StandaloneTasks() []string {
	out := make([]string, len(idx.standaloneTasks))
	copy(out, idx.standaloneTasks)
	return out
}

// AgentGroups returns every agent group declared by the topology.
func (idx *Index) AgentGroups() map[string]AgentGroup {
	out := make(map[string]AgentGroup, len(idx.agentGroups))
	for k, v := range idx.agentGroups {
		out[k] = v
	}
	return out
}

// Zones returns the distinct zone names referenced by the topology.
func (idx *Index) Zones() []string {
	out := make([]string, len(idx.zones))
	copy(out, idx.zones)
	return out
}

// CollectionOf resolves a task ID to its containing collection ID, or ""
// if the task is standalone.
func (idx *Index) CollectionOf(taskID string) string {
	t, ok := idx.tasksByID[taskID]
	if !ok {
		return ""
	}
	return t.CollectionID
}

// Match returns the task IDs whose Path matches the glob selector. A
// selector of "*" or "" matches every task.
func (idx *Index) Match(selector string) []string {
	var out []string
	for _, t := range idx.tasks {
		if selector == "" || selector == "*" || pathGlobMatch(selector, t.Path) {
			out = append(out, t.ID)
		}
	}
	return out
}
