package supabase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cepro/weighcapture/telemetry"
	"github.com/google/uuid"
	supa "github.com/nedpals/supabase-go"
)

const (
	supabaseUploadTimeout = time.Second * 10

	calibrationsTable = "weight_calibrations"
)

// supabaseCalibration holds the json encoding schema for a calibration record in supabase.
type supabaseCalibration struct {
	ID             uuid.UUID `json:"id"`
	Time           time.Time `json:"time"`
	DeviceID       string    `json:"device_id"`
	CaptureMethod  string    `json:"capture_method"`
	Success        bool      `json:"success"`
	PreviousOffset float64   `json:"previous_offset"`
	NewOffset      float64   `json:"new_offset"`
	PerformedBy    string    `json:"performed_by"`
}

func convertCalibrations(records []telemetry.CalibrationRecord) []supabaseCalibration {
	calibrations := make([]supabaseCalibration, 0, len(records))
	for _, record := range records {
		calibrations = append(calibrations, supabaseCalibration{
			ID:             record.ID,
			Time:           record.Timestamp,
			DeviceID:       record.DeviceID,
			CaptureMethod:  string(record.CaptureMethod),
			Success:        record.Success,
			PreviousOffset: record.PreviousOffset,
			NewOffset:      record.NewOffset,
			PerformedBy:    record.PerformedBy,
		})
	}
	return calibrations
}

// Client provides an interface onto the Supabase platform.
// It hides the underlying open source supabase library and adds reconnection and timeout logic.
type Client struct {
	url     string
	anonKey string
	userKey string
	schema  string
	timeout time.Duration

	subClient       *supa.Client // the raw client of the underlying supabase library we are using
	shouldReconnect bool         // when true, the subClient is 'dirty' and will be re-created next time a read or write call is made
	logger          *slog.Logger
}

func New(url, anonKey, userKey, schema string) (*Client, error) {
	if url == "" {
		return nil, errors.New("no supabase url")
	}

	client := &Client{
		url:             url,
		anonKey:         anonKey,
		userKey:         userKey,
		schema:          schema,
		timeout:         supabaseUploadTimeout,
		shouldReconnect: true, // shouldReconnect is marked as true from instantiation so the connection will be made lazily on the first request to read or write
		logger:          slog.Default().With("host", url),
	}

	return client, nil
}

// UploadCalibrations attempts to insert the given calibration records into the calibrations table.
func (c *Client) UploadCalibrations(records []telemetry.CalibrationRecord) error {

	err := c.reconnectIfNeccesary()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	// The supabase client library doesn't have good timeout support, so here we wrap the call in a timeout
	errCh := make(chan error, 1)
	subClient := c.subClient
	go func() {
		errCh <- subClient.DB.From(calibrationsTable).Insert(convertCalibrations(records)).Execute(nil)
	}()

	select {
	case <-time.After(c.timeout):
		c.setShouldReconnect()
		return errors.New("timed out")
	case err := <-errCh:
		if err != nil {
			c.setShouldReconnect()
		}
		return err
	}
}

// createSubClient creates the open-source supabase library client with sensible defaults and connects to the host.
func (c *Client) createSubClient() error {

	subClient := supa.CreateClient(c.url, c.anonKey)

	// The supabase client library doesn't have a fully featured interface, here we specify options directly by
	// adding headers to the postgrest requests.
	// Use the appropriate schema:
	if c.schema != "" {
		subClient.DB.AddHeader("Accept-Profile", c.schema)
		subClient.DB.AddHeader("Content-Profile", c.schema)
	}

	// Use a user JWT:
	if c.userKey != "" {
		subClient.DB.AddHeader("Authorization", fmt.Sprintf("Bearer %s", c.userKey))
	}

	c.subClient = subClient

	return nil
}

// setShouldReconnect is called when there has been an error with the upload that should trigger a re-connect.
func (c *Client) setShouldReconnect() {
	c.shouldReconnect = true
}

// reconnectIfNeccesary re-creates the client if there have been problems with the connection.
func (c *Client) reconnectIfNeccesary() error {
	if !c.shouldReconnect {
		return nil
	}

	err := c.createSubClient()
	if err != nil {
		return err
	}

	c.shouldReconnect = false

	c.logger.Info("Created supabase client")

	return nil
}
