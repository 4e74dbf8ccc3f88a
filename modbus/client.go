package modbus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
)

// Client provides an interface onto Modbus TCP devices.
// It hides the underlying open source modbus library and provides functionality to map metrics to their assigned registers.
// The connection is re-established lazily after any error, and calls are serialised so that a sampling loop and an
// on demand request (e.g. a calibration) can share one client.
type Client struct {
	host    string
	unitID  uint8
	timeout time.Duration

	mu              sync.Mutex
	subClient       *modbus.ModbusClient // the raw client of the underlying modbus library we are using
	shouldReconnect bool                 // when true, the subClient is 'dirty' and will be re-created next time a read or write call is made
	logger          *slog.Logger
}

func NewClient(host string, unitID uint8, timeout time.Duration) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("modbus host required")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	client := &Client{
		host:            host,
		unitID:          unitID,
		timeout:         timeout,
		shouldReconnect: true,
		logger:          slog.Default().With("host", host),
	}

	return client, nil
}

// Connect opens the connection to the host now, rather than on the first read or write.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectIfNeccesary()
}

// Close closes the connection, the next read or write will re-open it.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shouldReconnect = true
	if c.subClient == nil {
		return nil
	}
	err := c.subClient.Close()
	c.subClient = nil
	if err != nil {
		return fmt.Errorf("close modbus client: %w", err)
	}
	return nil
}

// createSubClient creates the open-source modbus library client with sensible defaults and connects to the host.
func (c *Client) createSubClient() error {
	subClient, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s", c.host),
		Timeout: c.timeout,
	})
	if err != nil {
		return fmt.Errorf("create modbus client: %w", err)
	}

	err = subClient.Open()
	if err != nil {
		return fmt.Errorf("open modbus client: %w", err)
	}

	if c.unitID != 0 {
		err = subClient.SetUnitId(c.unitID)
		if err != nil {
			subClient.Close()
			return fmt.Errorf("set unit id: %w", err)
		}
	}

	c.subClient = subClient

	return nil
}

// setShouldReconnect is called when there has been an error with the modbus connection that should trigger a re-connect.
func (c *Client) setShouldReconnect() {
	c.shouldReconnect = true
}

// reconnectIfNeccesary will close the old connection and reconnect if there have been problems with the connection.
func (c *Client) reconnectIfNeccesary() error {
	if !c.shouldReconnect {
		return nil
	}

	// Ignore errors from Close() as we will continue with the reconnect anyway and start a new connection.
	if c.subClient != nil {
		c.subClient.Close()
		c.subClient = nil
	}

	err := c.createSubClient()
	if err != nil {
		return err
	}

	c.shouldReconnect = false

	c.logger.Info("Connected modbus client")

	return nil
}
