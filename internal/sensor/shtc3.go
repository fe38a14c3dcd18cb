// Package sensor drives a Sensirion SHTC3 temperature/humidity sensor over I2C.
package sensor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddress is the fixed I2C address of the SHTC3.
const DefaultAddress uint16 = 0x70

// WakeupDelay is the SHTC3 wake-up time before it accepts a command.
const WakeupDelay = 240 * time.Microsecond

// SettleDelay is the minimum wait between starting a measurement and reading
// it back.
const SettleDelay = 500 * time.Millisecond

var (
	ErrCRC       = errors.New("shtc3: crc mismatch")
	ErrUnknownID = errors.New("shtc3: unexpected device identifier")
)

// PowerMode selects the measurement command.
type PowerMode int

const (
	NormalMode PowerMode = iota
	LowPowerMode
)

func (m PowerMode) String() string {
	switch m {
	case NormalMode:
		return "normal"
	case LowPowerMode:
		return "low-power"
	default:
		return fmt.Sprintf("PowerMode(%d)", int(m))
	}
}

var (
	cmdReadID       = []byte{0xEF, 0xC8}
	cmdWakeup       = []byte{0x35, 0x17}
	cmdSleep        = []byte{0xB0, 0x98}
	cmdMeasNormal   = []byte{0x78, 0x66} // T first, clock stretching disabled
	cmdMeasLowPower = []byte{0x60, 0x9C}
)

// Dev is a handle to an SHTC3.
type Dev struct {
	d  i2c.Dev
	id uint16
}

// New opens the sensor at addr on b and checks its identifier register.
// The sensor is woken first since a previous run may have left it asleep;
// an idle part NACKs the wakeup, which is ignored.
func New(b i2c.Bus, addr uint16) (*Dev, error) {
	d := &Dev{d: i2c.Dev{Bus: b, Addr: addr}}
	if err := d.Wakeup(); err != nil {
		slog.Debug("shtc3: wakeup not acknowledged", "addr", fmt.Sprintf("0x%02X", addr), "error", err)
	}
	time.Sleep(WakeupDelay)

	id, err := d.ReadID()
	if err != nil {
		return nil, err
	}
	d.id = id
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("SHTC3{%s}", &d.d)
}

// ID is the identifier read when the device was opened.
func (d *Dev) ID() uint16 {
	return d.id
}

// ReadID reads and validates the identifier register.
func (d *Dev) ReadID() (uint16, error) {
	var r [3]byte
	if err := d.d.Tx(cmdReadID, r[:]); err != nil {
		return 0, fmt.Errorf("shtc3 read id: %w", err)
	}
	id, err := word(r[:])
	if err != nil {
		return 0, fmt.Errorf("shtc3 read id: %w", err)
	}
	if id&0x083F != 0x0807 {
		return 0, fmt.Errorf("%w: 0x%04X", ErrUnknownID, id)
	}
	return id, nil
}

// Wakeup brings the sensor out of sleep.
func (d *Dev) Wakeup() error {
	if err := d.d.Tx(cmdWakeup, nil); err != nil {
		return fmt.Errorf("shtc3 wakeup: %w", err)
	}
	return nil
}

// Sleep puts the sensor in its low current state until the next Wakeup.
func (d *Dev) Sleep() error {
	if err := d.d.Tx(cmdSleep, nil); err != nil {
		return fmt.Errorf("shtc3 sleep: %w", err)
	}
	return nil
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return d.Sleep()
}

// StartMeasurement triggers a conversion. The result is available after
// SettleDelay through MeasurementResult.
func (d *Dev) StartMeasurement(mode PowerMode) error {
	var cmd []byte
	switch mode {
	case NormalMode:
		cmd = cmdMeasNormal
	case LowPowerMode:
		cmd = cmdMeasLowPower
	default:
		return fmt.Errorf("shtc3: unknown power mode %v", mode)
	}
	if err := d.d.Tx(cmd, nil); err != nil {
		return fmt.Errorf("shtc3 start measurement (%s): %w", mode, err)
	}
	return nil
}

// MeasurementResult reads back the last conversion.
func (d *Dev) MeasurementResult() (Measurement, error) {
	var r [6]byte
	if err := d.d.Tx(nil, r[:]); err != nil {
		return Measurement{}, fmt.Errorf("shtc3 read result: %w", err)
	}
	slog.Debug("shtc3: raw result", "addr", fmt.Sprintf("0x%02X", d.d.Addr), "data", fmt.Sprintf("%X", r[:]))

	rawT, err := word(r[0:3])
	if err != nil {
		return Measurement{}, fmt.Errorf("shtc3 temperature: %w", err)
	}
	rawRH, err := word(r[3:6])
	if err != nil {
		return Measurement{}, fmt.Errorf("shtc3 humidity: %w", err)
	}
	return Measurement{
		Temperature: float64(milliCelsius(rawT)) / 1000,
		Humidity:    float64(milliPercentRH(rawRH)) / 1000,
	}, nil
}

// milliCelsius is -45 + 175*raw/2^16 in fixed point, truncated to m°C.
func milliCelsius(raw uint16) int32 {
	return int32((21875*int64(raw))>>13) - 45000
}

// milliPercentRH is 100*raw/2^16 in fixed point, truncated to m%RH.
func milliPercentRH(raw uint16) int32 {
	return int32((12500 * int64(raw)) >> 13)
}

// Measure runs one normal-mode conversion. It blocks for at least SettleDelay
// unless ctx is cancelled first.
func (d *Dev) Measure(ctx context.Context) (Measurement, error) {
	if err := d.StartMeasurement(NormalMode); err != nil {
		return Measurement{}, err
	}

	t := time.NewTimer(SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return Measurement{}, ctx.Err()
	case <-t.C:
	}

	return d.MeasurementResult()
}

// Sense fills the temperature and humidity of env, like the periph
// environmental sensors do. Pressure is left untouched.
func (d *Dev) Sense(env *physic.Env) error {
	m, err := d.Measure(context.Background())
	if err != nil {
		return err
	}
	env.Temperature = physic.ZeroCelsius + physic.Temperature(m.Temperature*float64(physic.Kelvin))
	env.Humidity = physic.RelativeHumidity(m.Humidity * float64(physic.PercentRH))
	return nil
}

// word decodes a big-endian 16-bit value followed by its CRC.
func word(b []byte) (uint16, error) {
	if got := crc8(b[:2]); got != b[2] {
		return 0, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrCRC, b[2], got)
	}
	return binary.BigEndian.Uint16(b[:2]), nil
}

// crc8 is the Sensirion checksum: polynomial 0x31, init 0xFF, no reflection.
func crc8(b []byte) byte {
	crc := byte(0xFF)
	for _, x := range b {
		crc ^= x
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
