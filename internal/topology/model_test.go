package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sixTaskTopology() string {
	return `<topology>
		<group name="G" n="1">
			<collection name="Coll">
				<requirement zone="online" ncores="2" agentGroup="online"/>
				<task name="d0"/>
				<task name="d1"/>
				<task name="d2"/>
				<task name="d3"/>
				<task name="d4"/>
				<task name="d5"/>
			</collection>
		</group>
	</topology>`
}

func TestBuildSingleGroupSingleCollection(t *testing.T) {
	idx, err := Build(sixTaskTopology())
	require.NoError(t, err)
	assert.Len(t, idx.Tasks(), 6)

	coll, ok := idx.Collection("Coll")
	require.True(t, ok)
	assert.Equal(t, "online", coll.Zone)
	assert.Equal(t, 2, coll.NCores)
	assert.Len(t, coll.TaskIDs, 6)

	task, ok := idx.Task("d0")
	require.True(t, ok)
	assert.Equal(t, "Coll", task.CollectionID)
	assert.Equal(t, "G/Coll/d0", task.Path)
}

func TestBuildGroupReplication(t *testing.T) {
	doc := `<topology>
		<var name="odc_nmin_Proc" value="2"/>
		<group name="G" n="3">
			<collection name="Proc">
				<requirement zone="online" ncores="1" agentGroup="online"/>
				<task name="dev"/>
			</collection>
		</group>
	</topology>`
	idx, err := Build(doc)
	require.NoError(t, err)
	assert.Len(t, idx.Tasks(), 3)

	for _, id := range []string{"Proc_0", "Proc_1", "Proc_2"} {
		coll, ok := idx.Collection(id)
		require.True(t, ok, "missing collection %s", id)
		assert.Equal(t, 3, coll.N)
		assert.Equal(t, 2, coll.NMin)
	}
}

func TestBuildRejectsNMinAboveN(t *testing.T) {
	doc := `<topology>
		<var name="odc_nmin_Proc" value="5"/>
		<group name="G" n="1">
			<collection name="Proc">
				<requirement zone="online" ncores="1"/>
				<task name="dev"/>
			</collection>
		</group>
	</topology>`
	_, err := Build(doc)
	assert.Error(t, err)
}

func TestMatchGlob(t *testing.T) {
	idx, err := Build(sixTaskTopology())
	require.NoError(t, err)
	assert.Len(t, idx.Match("*"), 6)
	assert.Len(t, idx.Match("G/Coll/*"), 6)
	assert.Len(t, idx.Match("G/Coll/d0"), 1)
}
