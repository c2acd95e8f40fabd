package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bhkw/core/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func writeInputs(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, dir, GasPriceFile, "t,Gas_Price\n2,10\n1,10\n3,10\n")
	writeFile(t, dir, PowerPriceFile, "t,Power_Price\n1,1\n2,100\n3,1\n")
	writeFile(t, dir, CapacityPriceFile, "t,Capacity_Price\n1,1\n2,1\n3,1\n")
	writeFile(t, dir, CapacityAllowanceFile, "t,BHKWCapacityAllowance\n1,0\n2,300\n3,0\n")
	writeFile(t, dir, EnvelopeFile, ",Power,Gas,Heat\nMin,50,120,60\nMax,100,220,110\n")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)

	s, env, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, s.IDs())
	assert.Equal(t, model.Step{ID: 2, GasPrice: 10, PowerPrice: 100, CapacityPrice: 1, CapacityAllowance: 300}, s[1])
	assert.Equal(t, model.Envelope{PowerMin: 50, PowerMax: 100, GasMin: 120, GasMax: 220, HeatMin: 60, HeatMax: 110}, env)
}

func TestLoadSeries_MissingStep(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)
	writeFile(t, dir, CapacityPriceFile, "t,Capacity_Price\n1,1\n3,1\n")
	_, err := LoadSeries(dir)
	assert.ErrorIs(t, err, ErrMissingStep)

	writeFile(t, dir, CapacityPriceFile, "t,Capacity_Price\n1,1\n2,1\n3,1\n4,1\n")
	_, err = LoadSeries(dir)
	assert.ErrorIs(t, err, ErrMissingStep)
}

func TestLoadSeries_BadInput(t *testing.T) {
	cases := map[string]string{
		"wrong column": "t,Price\n1,1\n",
		"bad value":    "t,Power_Price\n1,abc\n",
		"bad step":     "t,Power_Price\nx,1\n",
		"duplicate":    "t,Power_Price\n1,1\n1,2\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeInputs(t, dir)
			writeFile(t, dir, PowerPriceFile, content)
			_, err := LoadSeries(dir)
			assert.Error(t, err)
		})
	}

	_, err := LoadSeries(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadSeries_EmptyHorizon(t *testing.T) {
	dir := t.TempDir()
	for _, sf := range seriesFiles {
		writeFile(t, dir, sf.name, "t,"+sf.column+"\n")
	}
	_, err := LoadSeries(dir)
	assert.ErrorIs(t, err, model.ErrInvalidSeries)
}

func TestLoadEnvelope_YAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "unit.yaml", `power_min: 50
power_max: 100
gas_min: 120
gas_max: 220
heat_min: 60
heat_max: 110
`)
	env, err := LoadEnvelope(p)
	require.NoError(t, err)
	assert.Equal(t, 220.0, env.GasMax)
}

func TestLoadEnvelope_Invalid(t *testing.T) {
	dir := t.TempDir()
	zero := writeFile(t, dir, "zero.csv", ",Power,Gas,Heat\nMin,100,120,60\nMax,100,220,110\n")
	_, err := LoadEnvelope(zero)
	assert.ErrorIs(t, err, model.ErrInvalidEnvelope)

	noMax := writeFile(t, dir, "nomax.csv", ",Power,Gas,Heat\nMin,50,120,60\nTypical,80,180,90\n")
	_, err = LoadEnvelope(noMax)
	assert.Error(t, err)

	noHeat := writeFile(t, dir, "noheat.csv", ",Power,Gas\nMin,50,120\nMax,100,220\n")
	_, err = LoadEnvelope(noHeat)
	assert.Error(t, err)

	badYAML := writeFile(t, dir, "bad.yml", "power_min: [\n")
	_, err = LoadEnvelope(badYAML)
	assert.Error(t, err)
}

func TestLoad_SampleData(t *testing.T) {
	s, env, err := Load(filepath.Join("..", "..", "testdata", "01_Input"), "")
	require.NoError(t, err)
	assert.Equal(t, 24, s.Len())
	yamlEnv, err := LoadEnvelope(filepath.Join("..", "..", "testdata", "unit.yaml"))
	require.NoError(t, err)
	assert.Equal(t, env, yamlEnv)
}
