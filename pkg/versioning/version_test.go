package versioning

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/require"
)

func TestEngineVersionParses(t *testing.T) {
	v := Engine()
	require.Equal(t, EngineVersion, v.String())
}

func TestAlgorithmIdentifiersPinEngineVersion(t *testing.T) {
	require.Equal(t, "lumen-mcda/"+EngineVersion, AlgorithmMCDA)
	require.Equal(t, "lumen-aggregate/"+EngineVersion, AlgorithmAggregate)
}

func TestEngineSatisfiesBundledPackRange(t *testing.T) {
	// The bundled packs declare this range.
	c, err := semver.NewConstraint(">=1.0.0 <2.0.0")
	require.NoError(t, err)
	require.True(t, c.Check(Engine()))
}
