package partition

import (
	"context"
	"time"

	"github.com/odcproject/odc/internal/fabric"
	"github.com/odcproject/odc/internal/odcerr"
)

// RecoveryReport summarizes a submit-with-recovery pass for the reply's
// FailedTasks/details and for the caller's logging.
type RecoveryReport struct {
	DegradedGroups []string
	Recovered      []string
	FailedNMin     []string
}

// submitWithRecovery implements spec.md §4.8's recovery protocol: after the
// initial submit-and-wait, compare actual vs expected agent counts per
// agent group, synthesize a one-shot recovery submission for any short
// group that cannot already satisfy its collections' nMin, and otherwise
// flag the affected collection templates as pending-ignored.
func (o *Orchestrator) submitWithRecovery(ctx context.Context, groups map[string]AgentGroupInfo, nMinInfo map[string]submitNMinView) (RecoveryReport, error) {
	var report RecoveryReport

	info, err := o.adapter.AgentInfo(ctx, o.session.SessionID)
	if err != nil {
		return report, odcerr.Newf(odcerr.DDSCommanderInfoFailed, "reading agent info: %v", err)
	}
	actualByGroup := map[string]int{}
	for _, a := range info {
		if a.Active {
			actualByGroup[a.Group]++
		}
	}

	for name, want := range groups {
		actual := actualByGroup[name]
		if actual >= want.NumAgents {
			continue
		}
		satisfiesNMin := collectionsSatisfyNMin(nMinInfo, name, actual)
		if satisfiesNMin {
			report.DegradedGroups = append(report.DegradedGroups, name)
			continue
		}

		missing := want.NumAgents - actual
		retryTimeout := o.agentWaitTimeout / 2
		if retryTimeout <= 0 {
			retryTimeout = 5 * time.Second
		}
		if err := o.adapter.Submit(ctx, o.session.SessionID, fabric.SubmitRequest{
			Zone:       want.Zone,
			AgentGroup: name,
			NumAgents:  missing,
			NumSlots:   want.NumSlots,
			NCores:     want.NumCores,
		}); err != nil {
			report.FailedNMin = append(report.FailedNMin, name)
			markNMinFailed(o, nMinInfo, name)
			continue
		}
		deadline := time.Now().Add(retryTimeout)
		if _, err := o.adapter.WaitForActiveSlots(ctx, o.session.SessionID, want.NumAgents*want.NumSlots, deadline); err != nil {
			// re-check actual count regardless of the wait's own error
		}

		info2, _ := o.adapter.AgentInfo(ctx, o.session.SessionID)
		actual2 := 0
		for _, a := range info2 {
			if a.Active && a.Group == name {
				actual2++
			}
		}
		if collectionsSatisfyNMin(nMinInfo, name, actual2) {
			report.Recovered = append(report.Recovered, name)
			continue
		}

		report.FailedNMin = append(report.FailedNMin, name)
		markNMinFailed(o, nMinInfo, name)
	}

	if len(report.FailedNMin) > 0 {
		return report, odcerr.New(odcerr.RequestTimeout, "submit-with-recovery failed nMin for one or more agent groups")
	}
	return report, nil
}

// submitNMinView is the subset of submit.NMinInfo recovery needs, keyed by
// collection template name.
type submitNMinView struct {
	CollectionName string
	N              int
	NMin           int
	Zone           string
	AgentGroup     string
}

// collectionsSatisfyNMin reports whether every collection template mapped
// to agentGroup would have its nMin satisfied by an actual agent count of
// actual (a coarse per-group proxy: the same group total is compared
// against each template's nMin; no per-collection slot accounting is done,
// here or at Activate).
func collectionsSatisfyNMin(nMinInfo map[string]submitNMinView, agentGroup string, actual int) bool {
	for _, info := range nMinInfo {
		if info.AgentGroup != agentGroup {
			continue
		}
		if actual < info.NMin {
			return false
		}
	}
	return true
}

// markNMinFailed flags every collection template mapped to agentGroup as
// pending-ignored; Activate applies this to the concrete topology once it
// exists.
func markNMinFailed(o *Orchestrator, nMinInfo map[string]submitNMinView, agentGroup string) {
	for name, info := range nMinInfo {
		if info.AgentGroup == agentGroup {
			o.session.PendingIgnoredCollections[name] = true
		}
	}
}
