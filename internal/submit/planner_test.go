package submit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlat(t *testing.T) {
	p := NewPlanner()
	params, err := p.Parse(`<submit><rms>localhost</rms><agents>1</agents><slots>36</slots></submit>`)
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, "localhost", params[0].RMS)
	assert.Equal(t, 1, params[0].NumAgents)
	assert.Equal(t, 36, params[0].NumSlots)
}

func TestParseUnknownKeyRejected(t *testing.T) {
	p := NewPlanner()
	_, err := p.Parse(`<submit><rms>localhost</rms><bogus>1</bogus></submit>`)
	assert.Error(t, err)
}

func TestParseWrappedSubmits(t *testing.T) {
	p := NewPlanner()
	doc := `<results>
		<submit><rms>slurm</rms><zone>calib</zone><agents>1</agents><slots>2</slots></submit>
		<submit><rms>slurm</rms><zone>online</zone><agents>4</agents><slots>2</slots></submit>
	</results>`
	params, err := p.Parse(doc)
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, "calib", params[0].Zone)
	assert.Equal(t, "online", params[1].Zone)
}

// TestCrossJoinZoneFanout reproduces the zone-fanout scenario: plugin "epn"
// with resources for zones calib (n=1) and online (n=4), and a collection
// nMin declared for "Processors" (n=4, nMin=2, zone=online). Submit must
// emit exactly two SubmitParams with the expected fields.
func TestCrossJoinZoneFanout(t *testing.T) {
	p := NewPlanner()
	doc := `<results>
		<submit><rms>slurm</rms><zone>calib</zone><agents>1</agents><slots>2</slots></submit>
		<submit><rms>slurm</rms><zone>online</zone><agents>4</agents><slots>2</slots></submit>
	</results>`
	raw, err := p.Parse(doc)
	require.NoError(t, err)

	zones := map[string]Zone{
		"calib":  {Name: "calib"},
		"online": {Name: "online"},
	}
	nMinInfo := map[string]NMinInfo{
		"Processors": {N: 4, NMin: 2, Zone: "online"},
	}

	out := p.CrossJoin(raw, zones, nMinInfo)
	require.Len(t, out, 2)

	assert.Equal(t, Param{RMS: "slurm", Zone: "calib", AgentGroup: "calib", NumAgents: 1, NumSlots: 2, MinAgents: 0}, out[0])
	assert.Equal(t, Param{RMS: "slurm", Zone: "online", AgentGroup: "online", NumAgents: 4, NumSlots: 2, MinAgents: 2}, out[1])
}

func TestCrossJoinNCoresBucketFanout(t *testing.T) {
	p := NewPlanner()
	raw := []Param{{RMS: "slurm", Zone: "mixed", NumAgents: 10, NumSlots: 1}}
	zones := map[string]Zone{
		"mixed": {
			Name: "mixed",
			Groups: []ZoneGroup{
				{Count: 3, NCores: 2, AgentGroupName: "small"},
				{Count: 1, NCores: 8, AgentGroupName: "big"},
			},
		},
	}
	out := p.CrossJoin(raw, zones, nil)
	require.Len(t, out, 2)

	total := 0
	for _, param := range out {
		total += param.NumAgents
	}
	assert.Equal(t, 10, total)
}
