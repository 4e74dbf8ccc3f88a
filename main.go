package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cepro/weighcapture/camera"
	"github.com/cepro/weighcapture/capture"
	"github.com/cepro/weighcapture/config"
	dataplatform "github.com/cepro/weighcapture/data_platform"
	"github.com/cepro/weighcapture/supabase"
	"github.com/cepro/weighcapture/telemetry"
	"github.com/cepro/weighcapture/weighcapture"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {

	configPath := flag.String("config", "config.json", "path to the JSON or YAML config file")
	flag.Parse()

	conf, err := config.Read(*configPath)
	if err != nil {
		slog.Error("Failed to read config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stdout, conf.Logging.Env, conf.Logging.Level)
	slog.SetDefault(logger)

	slog.Info("Starting weight capture...")

	ctx, cancel := context.WithCancel(context.Background())

	captureOpts := capture.Options{}
	if conf.AxleLimits != nil {
		captureOpts.AxleLimits = *conf.AxleLimits
	}
	if conf.Location != nil {
		captureOpts.Location = capture.StaticLocation(*conf.Location)
	}

	var calibrationRecords chan<- telemetry.CalibrationRecord
	if conf.CalibrationLog.Path != "" && conf.CalibrationLog.Supabase.Url != "" {
		supaClient, err := supabase.New(
			conf.CalibrationLog.Supabase.Url,
			os.Getenv("SUPABASE_KEY"),
			os.Getenv("SUPABASE_USER_KEY"),
			conf.CalibrationLog.Supabase.Schema,
		)
		if err != nil {
			slog.Error("Failed to create supabase client", "error", err)
			os.Exit(1)
		}

		calibrationLog, err := dataplatform.New(
			supaClient,
			conf.CalibrationLog.Path,
			time.Duration(conf.CalibrationLog.UploadIntervalSecs)*time.Second,
		)
		if err != nil {
			slog.Error("Failed to create calibration log", "error", err)
			os.Exit(1)
		}
		go calibrationLog.Run(ctx)
		calibrationRecords = calibrationLog.Records
	} else {
		slog.Warn("No calibration log configured, calibrations will not be recorded")
	}

	svc := weighcapture.New(weighcapture.Options{
		Capture:            captureOpts,
		CalibrationRecords: calibrationRecords,
	})

	// a device that fails to initialize is logged and left out, the others carry on
	for id, scaleConfig := range conf.Scales {
		_, err := svc.InitializeDigitalScale(ctx, id, scaleConfig)
		if err != nil {
			slog.Error("Failed to initialize scale", "provider_id", id, "error", err)
		}
	}
	for id, sensorConfig := range conf.IoTSensors {
		_, err := svc.InitializeIoTSensor(ctx, id, sensorConfig)
		if err != nil {
			slog.Error("Failed to initialize iot sensor", "provider_id", id, "error", err)
		}
	}
	for id, cameraConfig := range conf.Cameras {
		_, err := svc.InitializeCamera(ctx, id, cameraConfig, camera.NewMockRecognizer())
		if err != nil {
			slog.Error("Failed to initialize camera", "provider_id", id, "error", err)
		}
	}
	for id, manualConfig := range conf.ManualEntry {
		_, err := svc.InitializeManualEntry(ctx, id, manualConfig)
		if err != nil {
			slog.Error("Failed to initialize manual entry", "provider_id", id, "error", err)
		}
	}

	active := conf.ActiveProvider
	if active == "" {
		if ids := svc.ProviderIDs(); len(ids) > 0 {
			active = ids[0]
		}
	}
	if !svc.SetActiveProvider(active) {
		slog.Error("No provider available", "provider_id", active)
		os.Exit(1)
	}

	err = svc.StartCapture(ctx)
	if err != nil {
		slog.Error("Failed to start capture", "error", err)
		os.Exit(1)
	}

	if conf.CalibrateOnStart {
		_, err := svc.Calibrate(ctx)
		if err != nil {
			slog.Error("Failed to calibrate on start", "error", err)
		}
	}

	var metricsServer *http.Server
	if conf.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: conf.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			err := metricsServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server stopped", "error", err)
			}
		}()
	}

	if conf.ReadingLogIntervalSecs > 0 {
		go logReadings(ctx, svc, time.Duration(conf.ReadingLogIntervalSecs)*time.Second)
	}

	// wait for an interrupt before exiting
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan

	svc.Close()
	if metricsServer != nil {
		metricsServer.Close()
	}

	// cancel any open go-routines and give them up to 100ms to gracefully shutdown
	cancel()
	time.Sleep(time.Millisecond * 100)

	slog.Info("Exiting")
	os.Exit(0)
}

// logReadings periodically logs the current reading of the active provider.
func logReadings(ctx context.Context, svc *weighcapture.Service, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reading, err := svc.CurrentReading()
			if err != nil {
				slog.Debug("No reading available", "error", err)
				continue
			}
			args := []any{
				"provider_id", svc.ActiveProviderID(),
				"gross_weight", reading.GrossWeight,
				"confidence", reading.Confidence,
				"axles", len(reading.AxleWeights),
			}
			if reading.NetWeight != nil {
				args = append(args, "net_weight", *reading.NetWeight)
			}
			slog.Info("Current reading", args...)
		}
	}
}
