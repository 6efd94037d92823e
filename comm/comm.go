/*Package comm provides an embeddable type for communication with lab hardware
over a serial port or TCP.

Most usages of this package will boil down to:
	1.  embed RemoteDevice in a type that represents your hardware.
	2.  set the terminators if they are not carriage returns
	3.  populate SerialConf for devices on an RS232 or USB virtual COM port
	4.  write methods for your hardware on top of SendRecv

A minimal example for a device that answers "id?" with its identity:

	type Widget struct {
		*comm.RemoteDevice
	}

	func (w Widget) ID() (string, error) {
		err := w.Open()
		if err != nil {
			return "", err
		}
		defer w.Close()
		resp, err := w.SendRecv([]byte("id?"))
		return string(resp), err
	}
*/
package comm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrNoSerialConf is generated when IsSerial is true and SerialConf is nil
	ErrNoSerialConf = errors.New("comm: IsSerial=true but SerialConf is nil")

	// ErrNotConnected is generated when .Conn is nil and Send or Recv is called.
	ErrNotConnected = errors.New("comm: not connected to remote")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("comm: termination byte not found")
)

// DefaultTimeout is the TCP connect, read and write timeout
const DefaultTimeout = 3 * time.Second

// RemoteDevice has an address and can Open, Send, Recv and Close.
// It is safe for concurrent use; SendRecv holds the connection for the
// round trip.
type RemoteDevice struct {
	// Addr is a TCP host:port or a serial port name such as /dev/ttyUSB0 or COM3
	Addr string

	// IsSerial selects the serial transport
	IsSerial bool

	// SerialConf is used to open the port when IsSerial is true.  Its Name is
	// overwritten with Addr.
	SerialConf *serial.Config

	// TxTerminator is appended to every Send
	TxTerminator byte

	// RxTerminator ends every response
	RxTerminator byte

	// Timeout bounds TCP operations, DefaultTimeout if zero
	Timeout time.Duration

	mu   sync.Mutex
	conn io.ReadWriteCloser
	rd   *bufio.Reader
}

// NewRemoteDevice creates a new RemoteDevice with carriage return terminators.
// conf may be nil for TCP devices.
func NewRemoteDevice(addr string, isSerial bool, conf *serial.Config) *RemoteDevice {
	return &RemoteDevice{
		Addr:         addr,
		IsSerial:     isSerial,
		SerialConf:   conf,
		TxTerminator: '\r',
		RxTerminator: '\r',
	}
}

// Open the connection.  Transient failures are retried with exponential
// backoff for up to three seconds; devices on USB serial adapters in
// particular do not like being connection thrashed.
func (rd *RemoteDevice) Open() error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.conn != nil {
		return nil
	}
	op := func() error {
		err := rd.open()
		if err == ErrNoSerialConf || os.IsNotExist(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return fmt.Errorf("comm: opening %s: %w", rd.Addr, err)
	}
	return nil
}

func (rd *RemoteDevice) open() error {
	var (
		conn io.ReadWriteCloser
		err  error
	)
	if rd.IsSerial {
		if rd.SerialConf == nil {
			return ErrNoSerialConf
		}
		conf := *rd.SerialConf
		conf.Name = rd.Addr
		conn, err = serial.OpenPort(&conf)
	} else {
		conn, err = TCPSetup(rd.Addr, rd.timeout())
	}
	if err != nil {
		return err
	}
	rd.conn = conn
	rd.rd = bufio.NewReader(conn)
	return nil
}

func (rd *RemoteDevice) timeout() time.Duration {
	if rd.Timeout > 0 {
		return rd.Timeout
	}
	return DefaultTimeout
}

// Connected returns true if the connection is open
func (rd *RemoteDevice) Connected() bool {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.conn != nil
}

// Close the connection.  Closing a closed device does nothing.
func (rd *RemoteDevice) Close() error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.conn == nil {
		return nil
	}
	err := rd.conn.Close()
	rd.conn = nil
	rd.rd = nil
	return err
}

// Send writes data to the remote followed by the Tx terminator
func (rd *RemoteDevice) Send(b []byte) error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.send(b)
}

func (rd *RemoteDevice) send(b []byte) error {
	if rd.conn == nil {
		return ErrNotConnected
	}
	rd.deadline()
	buf := make([]byte, len(b)+1)
	copy(buf, b)
	buf[len(b)] = rd.TxTerminator
	_, err := rd.conn.Write(buf)
	return err
}

// Recv receives data from the remote and strips the Rx terminator
func (rd *RemoteDevice) Recv() ([]byte, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.recv()
}

func (rd *RemoteDevice) recv() ([]byte, error) {
	if rd.conn == nil {
		return nil, ErrNotConnected
	}
	rd.deadline()
	term := rd.RxTerminator
	buf, err := rd.rd.ReadBytes(term)
	if err != nil {
		if err == io.EOF && len(buf) > 0 {
			return buf, ErrTerminatorNotFound
		}
		return nil, err
	}
	return bytes.TrimSuffix(buf, []byte{term}), nil
}

// SendRecv sends a buffer after appending the Tx terminator,
// then returns the response with the Rx terminator stripped
func (rd *RemoteDevice) SendRecv(b []byte) ([]byte, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if err := rd.send(b); err != nil {
		return nil, err
	}
	return rd.recv()
}

// deadline refreshes the read and write deadlines of TCP connections
func (rd *RemoteDevice) deadline() {
	if c, ok := rd.conn.(net.Conn); ok {
		c.SetDeadline(time.Now().Add(rd.timeout()))
	}
}

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}
