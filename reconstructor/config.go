package main

import (
	"encoding/json"
	"fmt"
	"os"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

func LoadConfiguration(filename string) (eventbuilder.Configuration, error) {
	var config eventbuilder.Configuration

	// Set default values
	config.Verbosity = 0
	config.MaxEvents = 0
	config.Mode = eventbuilder.ModeCooperative
	config.IdleBackoffMs = 10
	config.MaxIdleBackoffMs = 100
	config.TickIntervalUs = 1000
	config.QueueCapacity = 1000
	config.UseWorkers = true
	config.Source = "file"
	config.BaudRate = 115200
	config.DataBits = 8
	config.StopBits = 1
	config.Parity = "N"
	config.ChunkSize = 1 << 20
	config.MaxPendingEvents = 10000
	config.NoDB = true
	config.Driver = "mysql"
	config.Host = "localhost"
	config.User = "reader"
	config.Passwd = "readonly"
	config.DBName = "COSI"

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, &eventbuilder.ErrOpenFile{Filename: filename, Err: err}
	}
	err = json.Unmarshal(data, &config)
	if err != nil {
		return config, err
	}
	return config, nil
}

func printConfiguration(config eventbuilder.Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("Mode: %s", config.Mode), "config")
	logger.Info(fmt.Sprintf("Max events: %d", config.MaxEvents), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Idle backoff: %d-%d ms", config.IdleBackoffMs, config.MaxIdleBackoffMs), "config")
	logger.Info(fmt.Sprintf("Tick interval: %d us", config.TickIntervalUs), "config")
	logger.Info(fmt.Sprintf("Queue capacity: %d", config.QueueCapacity), "config")
	logger.Info(fmt.Sprintf("Use workers: %t", config.UseWorkers), "config")
	logger.Info(fmt.Sprintf("Source: %s", config.Source), "config")
	switch config.Source {
	case "serial":
		logger.Info(fmt.Sprintf("Serial port: %s (%d %d%s%d)", config.SerialPort, config.BaudRate, config.DataBits, config.Parity, config.StopBits), "config")
	case "pcap":
		logger.Info(fmt.Sprintf("File in: %s, UDP port %d", config.FileIn, config.UdpPort), "config")
	default:
		logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "config")
	}
	logger.Info(fmt.Sprintf("Chunk size: %d", config.ChunkSize), "config")
	logger.Info(fmt.Sprintf("Ignore pointing: %t", config.IgnorePointing), "config")
	logger.Info(fmt.Sprintf("Max pending events: %d", config.MaxPendingEvents), "config")
	logger.Info(fmt.Sprintf("Coefficients file: %s", config.CoeffsFile), "config")
	logger.Info(fmt.Sprintf("Splines file: %s", config.SplinesFile), "config")
	logger.Info(fmt.Sprintf("Energy calibration tag: %s", config.EnergyCalibrationTag), "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.NoDB), "config")
	if !config.NoDB {
		logger.Info(fmt.Sprintf("Driver: %s", config.Driver), "config")
		logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
		logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
		logger.Info(fmt.Sprintf("Run number: %d", config.RunNumber), "config")
	}
	logger.Info(fmt.Sprintf("Detectors in configuration: %d", len(config.Geometry)), "config")
	logger.Info(fmt.Sprintf("Dump events: %t (%s)", config.DumpEvents, config.DumpFile), "config")
}
