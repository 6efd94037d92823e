package comm_test

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/slmsuite/hardware/comm"
)

// upperServer answers every \r terminated line with the line in upper case
func upperServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				for {
					line, err := r.ReadString('\r')
					if err != nil {
						return
					}
					c.Write([]byte(strings.ToUpper(line)))
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestSendRecvTCP(t *testing.T) {
	rd := comm.NewRemoteDevice(upperServer(t), false, nil)
	if err := rd.Open(); err != nil {
		t.Fatal(err)
	}
	defer rd.Close()
	for _, cmd := range []string{"id?", "phase 1"} {
		resp, err := rd.SendRecv([]byte(cmd))
		if err != nil {
			t.Fatal(err)
		}
		if string(resp) != strings.ToUpper(cmd) {
			t.Errorf("got %q, expected %q", resp, strings.ToUpper(cmd))
		}
	}
}

func TestNotConnected(t *testing.T) {
	rd := comm.NewRemoteDevice("127.0.0.1:1", false, nil)
	if _, err := rd.SendRecv([]byte("x")); !errors.Is(err, comm.ErrNotConnected) {
		t.Errorf("got %v, expected ErrNotConnected", err)
	}
	if err := rd.Close(); err != nil {
		t.Errorf("closing an unopened device: %v", err)
	}
}

func TestSerialWithoutConfIsPermanent(t *testing.T) {
	rd := comm.NewRemoteDevice("/dev/ttyUSB9", true, nil)
	err := rd.Open()
	if !errors.Is(err, comm.ErrNoSerialConf) {
		t.Errorf("got %v, expected ErrNoSerialConf", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	rd := comm.NewRemoteDevice(upperServer(t), false, nil)
	if err := rd.Open(); err != nil {
		t.Fatal(err)
	}
	if err := rd.Open(); err != nil {
		t.Fatal(err)
	}
	if !rd.Connected() {
		t.Error("not connected after open")
	}
	rd.Close()
	if rd.Connected() {
		t.Error("connected after close")
	}
}
