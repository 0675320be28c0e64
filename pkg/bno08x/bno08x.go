// Package bno08x reads the yaw/pitch/roll report stream that a BNO08X IMU
// emits in UART-RVC mode and serves it as a compass heading source.
package bno08x

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/tigerbot-team/orientbot/pkg/heading/angle"
	"github.com/tigerbot-team/orientbot/pkg/logging"
)

var log = logging.For("bno08x")

const (
	DefaultDevice   = "/dev/ttyAMA0"
	DefaultBaudRate = 115200

	ReportFrequency = 100
	ReportInterval  = time.Second / ReportFrequency

	// DefaultMaxAge is how old the last report may be before ReadHeading
	// refuses it.
	DefaultMaxAge = time.Second

	packetLen = 19
)

var (
	ErrNoReport    = errors.New("no recent IMU report")
	ErrBadChecksum = errors.New("bad packet checksum")
	ErrLostSync    = errors.New("lost sync with packet stream")
)

var header = []byte{0xaa, 0xaa}

type IMUReport struct {
	Time   time.Time
	Index  uint8
	Yaw    int16
	Pitch  int16
	Roll   int16
	XAccel int16
	YAccel int16
	ZAccel int16
}

func (i IMUReport) String() string {
	return fmt.Sprintf("[%02x] Y:%7.2f P:%7.2f R:%7.2f X:%7.2f Y:%7.2f Z:%7.2f",
		i.Index, float64(i.Yaw)/100.0, float64(i.Pitch)/100.0, float64(i.Roll)/100.0,
		float64(i.XAccel)/100.0, float64(i.YAccel)/100.0, float64(i.ZAccel)/100.0)
}

// YawDegrees is the raw yaw, -180..180, anticlockwise positive.
func (i IMUReport) YawDegrees() float64 {
	return float64(i.Yaw) / 100.0
}

// Heading is the yaw as a clockwise compass heading in [0, 360).
func (i IMUReport) Heading() float64 {
	return angle.FromYaw(i.YawDegrees())
}

// decodePacket parses one 19-byte report.  buf must start with the header.
func decodePacket(buf []byte, now time.Time) (IMUReport, error) {
	if len(buf) != packetLen || !bytes.Equal(buf[:2], header) {
		return IMUReport{}, ErrLostSync
	}
	var checksum uint8
	for _, b := range buf[2 : packetLen-1] {
		checksum += b
	}
	if buf[packetLen-1] != checksum {
		return IMUReport{}, fmt.Errorf("%w: %x != %x", ErrBadChecksum, buf[packetLen-1], checksum)
	}
	return IMUReport{
		Time:   now,
		Index:  buf[2],
		Yaw:    int16(binary.LittleEndian.Uint16(buf[3:5])),
		Pitch:  int16(binary.LittleEndian.Uint16(buf[5:7])),
		Roll:   int16(binary.LittleEndian.Uint16(buf[7:9])),
		XAccel: int16(binary.LittleEndian.Uint16(buf[9:11])),
		YAccel: int16(binary.LittleEndian.Uint16(buf[11:13])),
		ZAccel: int16(binary.LittleEndian.Uint16(buf[13:15])),
	}, nil
}

type BNO08X struct {
	Device   string
	BaudRate int
	MaxAge   time.Duration

	// Open and Now are swapped out by tests.
	Open func(device string, mode *serial.Mode) (io.ReadCloser, error)
	Now  func() time.Time

	lock       sync.Mutex
	cond       *sync.Cond
	lastReport IMUReport
}

func New(device string, baudRate int) *BNO08X {
	if device == "" {
		device = DefaultDevice
	}
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	b := &BNO08X{
		Device:   device,
		BaudRate: baudRate,
		MaxAge:   DefaultMaxAge,
		Open: func(device string, mode *serial.Mode) (io.ReadCloser, error) {
			return serial.Open(device, mode)
		},
		Now: time.Now,
	}
	b.cond = sync.NewCond(&b.lock)
	return b
}

func (b *BNO08X) CurrentReport() IMUReport {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.lastReport
}

// ReadHeading returns the compass heading from the latest report.
func (b *BNO08X) ReadHeading() (float64, error) {
	r := b.CurrentReport()
	if r.Time.IsZero() {
		return 0, ErrNoReport
	}
	if age := b.Now().Sub(r.Time); age > b.MaxAge {
		return 0, fmt.Errorf("%w: last report is %v old", ErrNoReport, age.Round(time.Millisecond))
	}
	return r.Heading(), nil
}

// WaitForReportAfter blocks until a report newer than t arrives or ctx ends.
func (b *BNO08X) WaitForReportAfter(ctx context.Context, t time.Time) (IMUReport, error) {
	stop := context.AfterFunc(ctx, func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		b.cond.Broadcast()
	})
	defer stop()

	b.lock.Lock()
	defer b.lock.Unlock()
	for !b.lastReport.Time.After(t) {
		if err := ctx.Err(); err != nil {
			return IMUReport{}, err
		}
		b.cond.Wait()
	}
	return b.lastReport, nil
}

// LoopReadingReports keeps the serial port open and decodes reports until ctx
// is done, reopening the port after any failure.
func (b *BNO08X) LoopReadingReports(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer log.Info().Msg("IMU loop exited")
	for ctx.Err() == nil {
		err := b.openAndLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("device", b.Device).Msg("IMU loop stopped; will retry")
		select {
		case <-ctx.Done():
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (b *BNO08X) openAndLoop(ctx context.Context) error {
	port, err := b.Open(b.Device, &serial.Mode{BaudRate: b.BaudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", b.Device, err)
	}
	// Closing the port is the only way to unblock a pending read.
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer func() {
		if stop() {
			_ = port.Close()
		}
	}()
	return b.readReports(ctx, port)
}

func (b *BNO08X) readReports(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
	buf := make([]byte, packetLen)
	for ctx.Err() == nil {
		if err := resync(br); err != nil {
			return err
		}
		log.Debug().Msg("In sync with packet stream")
		for ctx.Err() == nil {
			if _, err := io.ReadFull(br, buf); err != nil {
				return fmt.Errorf("failed to read from serial: %w", err)
			}
			report, err := decodePacket(buf, b.Now())
			if err != nil {
				log.Warn().Err(err).Msg("Dropping packet, resyncing")
				break
			}
			b.setReport(report)
		}
	}
	return ctx.Err()
}

// resync discards bytes until the next packet header.
func resync(br *bufio.Reader) error {
	for {
		buf, err := br.Peek(2)
		if err != nil {
			return fmt.Errorf("failed to read from serial: %w", err)
		}
		if bytes.Equal(buf, header) {
			return nil
		}
		if _, err := br.Discard(1); err != nil {
			return fmt.Errorf("failed to read from serial: %w", err)
		}
	}
}

func (b *BNO08X) setReport(report IMUReport) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.lastReport = report
	b.cond.Broadcast()
}
