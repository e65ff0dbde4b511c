// SPDX-License-Identifier: GPL-3.0-or-later

package wayout

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envMap adapts a map to the LookupEnv signature.
func envMap(env map[string]string) func(key string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}
}

// NewConnectFunc populates all fields from Config and the provided logger.
func TestNewConnectFunc(t *testing.T) {
	cfg := NewConfig()
	logger := DefaultSLogger()

	fn := NewConnectFunc(cfg, logger)

	require.NotNil(t, fn)
	assert.NotNil(t, fn.Dialer)
	assert.NotNil(t, fn.ErrClassifier)
	assert.NotNil(t, fn.Logger)
	assert.NotNil(t, fn.LookupEnv)
	assert.NotNil(t, fn.TimeNow)
}

// CompositorSocketPath follows wl_display_connect's resolution rules.
func TestCompositorSocketPath(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// env is the simulated environment.
		env map[string]string

		// want is the expected socket path.
		want string

		// wantErr indicates whether resolution should fail.
		wantErr bool
	}{
		{
			name: "absolute WAYLAND_DISPLAY is used verbatim",
			env: map[string]string{
				"WAYLAND_DISPLAY": "/tmp/custom-wayland",
				"XDG_RUNTIME_DIR": "/run/user/1000",
			},
			want: "/tmp/custom-wayland",
		},

		{
			name: "relative WAYLAND_DISPLAY joins XDG_RUNTIME_DIR",
			env: map[string]string{
				"WAYLAND_DISPLAY": "wayland-1",
				"XDG_RUNTIME_DIR": "/run/user/1000",
			},
			want: "/run/user/1000/wayland-1",
		},

		{
			name: "unset WAYLAND_DISPLAY defaults to wayland-0",
			env: map[string]string{
				"XDG_RUNTIME_DIR": "/run/user/1000",
			},
			want: "/run/user/1000/wayland-0",
		},

		{
			name: "empty WAYLAND_DISPLAY defaults to wayland-0",
			env: map[string]string{
				"WAYLAND_DISPLAY": "",
				"XDG_RUNTIME_DIR": "/run/user/1000",
			},
			want: "/run/user/1000/wayland-0",
		},

		{
			name:    "missing XDG_RUNTIME_DIR fails",
			env:     map[string]string{"WAYLAND_DISPLAY": "wayland-0"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := CompositorSocketPath(envMap(tt.env))

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrNoCompositor)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, path)
		})
	}
}

// Call dials the resolved socket with the unix network.
func TestConnectFunc(t *testing.T) {
	var gotNetwork, gotAddress string
	cfg := NewConfig()
	cfg.LookupEnv = envMap(map[string]string{
		"WAYLAND_DISPLAY": "wayland-0",
		"XDG_RUNTIME_DIR": "/run/user/1000",
	})
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			gotNetwork, gotAddress = network, address
			conn := &netstub.FuncConn{
				CloseFunc: func() error { return nil },
				LocalAddrFunc: func() net.Addr {
					return &net.UnixAddr{Name: "", Net: "unix"}
				},
				RemoteAddrFunc: func() net.Addr {
					return &net.UnixAddr{Name: address, Net: "unix"}
				},
			}
			return conn, nil
		},
	}

	fn := NewConnectFunc(cfg, DefaultSLogger())
	conn, err := fn.Call(context.Background(), Unit{})

	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, "unix", gotNetwork)
	assert.Equal(t, "/run/user/1000/wayland-0", gotAddress)
	conn.Close()
}

// Dial failures wrap ErrNoCompositor so callers can classify the outcome.
func TestConnectFuncNoCompositor(t *testing.T) {
	cfg := NewConfig()
	cfg.LookupEnv = envMap(map[string]string{
		"XDG_RUNTIME_DIR": "/run/user/1000",
	})
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, errors.New("connect: connection refused")
		},
	}

	fn := NewConnectFunc(cfg, DefaultSLogger())
	conn, err := fn.Call(context.Background(), Unit{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCompositor)
	assert.Nil(t, conn)
}

// An unresolvable socket path fails without dialing.
func TestConnectFuncNoRuntimeDir(t *testing.T) {
	dialCalled := false
	cfg := NewConfig()
	cfg.LookupEnv = envMap(map[string]string{})
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialCalled = true
			return nil, errors.New("should not reach here")
		},
	}

	fn := NewConnectFunc(cfg, DefaultSLogger())
	_, err := fn.Call(context.Background(), Unit{})

	require.ErrorIs(t, err, ErrNoCompositor)
	assert.False(t, dialCalled)
}

// Call emits connectStart/connectDone log events.
func TestConnectFuncLogging(t *testing.T) {
	logger, records := newCapturingLogger()

	cfg := NewConfig()
	cfg.LookupEnv = envMap(map[string]string{
		"XDG_RUNTIME_DIR": "/run/user/1000",
	})
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			conn := &netstub.FuncConn{
				CloseFunc: func() error { return nil },
				LocalAddrFunc: func() net.Addr {
					return &net.UnixAddr{Name: "", Net: "unix"}
				},
				RemoteAddrFunc: func() net.Addr {
					return &net.UnixAddr{Name: address, Net: "unix"}
				},
			}
			return conn, nil
		},
	}

	fn := NewConnectFunc(cfg, logger)
	conn, err := fn.Call(context.Background(), Unit{})
	require.NoError(t, err)
	conn.Close()

	require.Len(t, *records, 2)
	assert.Equal(t, "connectStart", (*records)[0].Message)
	assert.Equal(t, "connectDone", (*records)[1].Message)
}
