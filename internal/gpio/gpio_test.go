package gpio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRadioConfig() RadioConfig {
	return RadioConfig{
		COS:    PinConfig{Offset: DefaultPinCOS, Direction: In},
		PTT:    PinConfig{Offset: DefaultPinPTT, Direction: Out},
		LEDPwr: PinConfig{Offset: DefaultPinLEDPwr, Direction: Out},
		LEDRx:  PinConfig{Offset: DefaultPinLEDRx, Direction: Out},
		LEDTx:  PinConfig{Offset: DefaultPinLEDTx, Direction: Out},
	}
}

func TestPinReadInversion(t *testing.T) {
	tests := []struct {
		name     string
		inverted bool
		raw      int
		want     Level
	}{
		{"plain high", false, 1, High},
		{"plain low", false, 0, Low},
		{"inverted raw high", true, 1, Low},
		{"inverted raw low", true, 0, High},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewVirtualBackend()
			p, err := NewPin(b, PinConfig{Name: "cos", Offset: 4, Direction: In, Inverted: tt.inverted})
			require.NoError(t, err)

			b.Set(4, tt.raw)
			got, err := p.Read()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPinWriteInversion(t *testing.T) {
	b := NewVirtualBackend()
	p, err := NewPin(b, PinConfig{Name: "ptt", Offset: 5, Direction: Out, Inverted: true})
	require.NoError(t, err)

	require.NoError(t, p.Write(High))
	assert.Equal(t, 0, b.Value(5), "logical HIGH on an inverted pin is electrical 0")

	require.NoError(t, p.Write(Low))
	assert.Equal(t, 1, b.Value(5))

	got, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, Low, got)
}

func TestPinWriteToInput(t *testing.T) {
	b := NewVirtualBackend()
	p, err := NewPin(b, PinConfig{Name: "cos", Offset: 4, Direction: In})
	require.NoError(t, err)

	err = p.Write(High)
	assert.ErrorIs(t, err, ErrInvalidOperation)
	assert.Empty(t, b.Writes())
}

func TestPinReadError(t *testing.T) {
	b := NewVirtualBackend()
	p, err := NewPin(b, PinConfig{Name: "cos", Offset: 4, Direction: In})
	require.NoError(t, err)

	b.ReadError = errors.New("permission denied")
	_, err = p.Read()
	assert.ErrorIs(t, err, ErrHardwareIO)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestPinWriteError(t *testing.T) {
	b := NewVirtualBackend()
	p, err := NewPin(b, PinConfig{Name: "ptt", Offset: 5, Direction: Out})
	require.NoError(t, err)

	b.WriteError = errors.New("unexported")
	assert.ErrorIs(t, p.Write(High), ErrHardwareIO)
}

func TestOpenRadio(t *testing.T) {
	b := NewVirtualBackend()
	r, err := OpenRadio(b, testRadioConfig())
	require.NoError(t, err)

	assert.Equal(t, NameCOS, r.COS.Name())
	assert.Equal(t, In, r.COS.Direction())
	assert.Equal(t, NamePTT, r.PTT.Name())
	assert.Equal(t, Out, r.PTT.Direction())
	assert.Same(t, Backend(b), r.Backend())
}

func TestOpenRadioRejectsWrongDirection(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RadioConfig)
	}{
		{"cos as output", func(c *RadioConfig) { c.COS.Direction = Out }},
		{"ptt as input", func(c *RadioConfig) { c.PTT.Direction = In }},
		{"led as input", func(c *RadioConfig) { c.LEDTx.Direction = In }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewVirtualBackend()
			cfg := testRadioConfig()
			tt.mutate(&cfg)

			_, err := OpenRadio(b, cfg)
			assert.ErrorIs(t, err, ErrInvalidOperation)
			assert.False(t, b.Released(DefaultPinCOS), "no line should have been requested")
			assert.Equal(t, 0, b.Value(DefaultPinCOS))
		})
	}
}

func TestOpenRadioReleasesOnFailure(t *testing.T) {
	b := NewVirtualBackend()
	cfg := testRadioConfig()
	cfg.LEDTx.Offset = cfg.PTT.Offset // second request of the same line fails

	_, err := OpenRadio(b, cfg)
	require.ErrorIs(t, err, ErrHardwareIO)

	for _, off := range []int{cfg.COS.Offset, cfg.PTT.Offset, cfg.LEDPwr.Offset, cfg.LEDRx.Offset} {
		assert.True(t, b.Released(off), "pin %d should be released", off)
	}
}

func TestRadioResetAndCarrier(t *testing.T) {
	b := NewVirtualBackend()
	r, err := OpenRadio(b, testRadioConfig())
	require.NoError(t, err)

	require.NoError(t, r.Reset())
	assert.Equal(t, []Write{
		{NameLEDPwr, 1},
		{NamePTT, 0},
		{NameLEDRx, 0},
		{NameLEDTx, 0},
	}, b.Writes())

	on, err := r.Carrier()
	require.NoError(t, err)
	assert.False(t, on)

	b.Set(DefaultPinCOS, 1)
	on, err = r.Carrier()
	require.NoError(t, err)
	assert.True(t, on)
}

func TestRadioCarrierInverted(t *testing.T) {
	b := NewVirtualBackend()
	cfg := testRadioConfig()
	cfg.COS.Inverted = true
	r, err := OpenRadio(b, cfg)
	require.NoError(t, err)

	on, err := r.Carrier()
	require.NoError(t, err)
	assert.True(t, on, "inverted COS idles electrically low, which is carrier present")
}

func TestRadioClose(t *testing.T) {
	b := NewVirtualBackend()
	cfg := testRadioConfig()
	r, err := OpenRadio(b, cfg)
	require.NoError(t, err)
	require.NoError(t, r.Reset())
	require.NoError(t, r.PTT.Write(High))

	require.NoError(t, r.Close())

	assert.True(t, b.Closed)
	for _, off := range []int{cfg.COS.Offset, cfg.PTT.Offset, cfg.LEDPwr.Offset, cfg.LEDRx.Offset, cfg.LEDTx.Offset} {
		assert.True(t, b.Released(off), "pin %d should be released", off)
		assert.Equal(t, 0, b.Value(off))
	}

	_, err = r.COS.Read()
	assert.ErrorIs(t, err, ErrHardwareIO, "reads after release fail")
}

func TestOpenBackendSelection(t *testing.T) {
	dir := t.TempDir()
	old := devDir
	devDir = dir
	t.Cleanup(func() { devDir = old })

	b, err := Open(BackendAuto, "gpiochip0")
	require.NoError(t, err)
	assert.Equal(t, "virtual", b.Name(), "no chip device present")

	b, err = Open(BackendVirtual, "gpiochip0")
	require.NoError(t, err)
	assert.Equal(t, "virtual", b.Name())

	_, err = Open("sysfs", "gpiochip0")
	assert.ErrorIs(t, err, ErrInvalidOperation)

	assert.False(t, chipPresent("gpiochip0"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gpiochip0"), nil, 0o644))
	assert.True(t, chipPresent("gpiochip0"))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "HIGH", High.String())
	assert.Equal(t, "LOW", Low.String())
	assert.Equal(t, "out", Out.String())
	assert.Equal(t, "in", In.String())
}
