package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/roman-kulish/wifi-csi/internal/csi"
	"github.com/roman-kulish/wifi-csi/internal/link"
)

// Source delivers samples until ctx is cancelled or the device link ends.
type Source interface {
	Name() string
	Collect(ctx context.Context, samples chan<- csi.Sample) error
	Counters() link.Counters
}

type streamSource struct {
	reader *link.RecordReader
}

func (s *streamSource) Name() string {
	return s.reader.Name()
}

func (s *streamSource) Counters() link.Counters {
	return s.reader.Counters()
}

func (s *streamSource) Collect(ctx context.Context, samples chan<- csi.Sample) error {
	done, err := s.reader.Start(ctx, samples)
	if err != nil {
		return err
	}
	return <-done
}

type mqttSource struct {
	name string
	src  *link.MQTTSource
}

func (s *mqttSource) Name() string {
	return s.name
}

func (s *mqttSource) Counters() link.Counters {
	return s.src.Counters()
}

func (s *mqttSource) Collect(ctx context.Context, samples chan<- csi.Sample) error {
	if err := s.src.Start(ctx, samples); err != nil {
		return err
	}
	<-ctx.Done()
	s.src.Stop()
	return nil
}

// stamper labels every accepted record with the session label, description and the UTC
// time it was received.
func stamper(session SessionConfig) func(s *csi.Sample) {
	return func(s *csi.Sample) {
		now := timeNow().UTC()
		s.ReceivedAt = &now
		if session.Label != "" {
			s.Label = session.Label
		}
		if session.Description != "" {
			s.Description = session.Description
		}
	}
}

// createSource opens the configured device link.
func createSource(config *Config, logger *slog.Logger) (Source, error) {
	stamp := stamper(config.Session)

	switch config.Source.Type {
	case SourceStdin:
		r := link.NewRecordReader("stdin", os.Stdin, link.WithReaderLogger(logger), link.WithStamp(stamp))
		return &streamSource{reader: r}, nil

	case SourceFile, SourceSerial:
		// The serial line is expected to be configured (baud rate, raw mode) by the OS.
		f, err := os.Open(config.Source.Path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", config.Source.Path, err)
		}
		name := fmt.Sprintf("%s:%s", config.Source.Type, config.Source.Path)
		r := link.NewRecordReader(name, f, link.WithReaderLogger(logger), link.WithStamp(stamp))
		return &streamSource{reader: r}, nil

	case SourceMQTT:
		m := config.Source.MQTT
		src, err := link.NewMQTTSource(
			link.MQTTConfig{
				Broker:   m.Broker,
				ClientID: m.ClientID,
				Username: m.Username,
				Password: m.Password,
				Topic:    m.Topic,
				QoS:      m.QoS,
			},
			link.WithMQTTLogger(logger),
			link.WithMQTTStamp(stamp),
		)
		if err != nil {
			return nil, fmt.Errorf("creating mqtt source: %w", err)
		}
		return &mqttSource{name: "mqtt:" + m.Topic, src: src}, nil

	default:
		return nil, fmt.Errorf("unknown source type '%s'", config.Source.Type)
	}
}
