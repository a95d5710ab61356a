package eventbuilder

import "time"

type SchedulerMode string

const (
	ModeCooperative SchedulerMode = "cooperative"
	ModeStaged      SchedulerMode = "staged"
)

type Configuration struct {
	Verbosity int `json:"verbosity"`
	MaxEvents int `json:"max_events"`

	Mode             SchedulerMode `json:"mode"`
	IdleBackoffMs    int           `json:"idle_backoff_ms"`
	MaxIdleBackoffMs int           `json:"max_idle_backoff_ms"`
	TickIntervalUs   int           `json:"tick_interval_us"`
	QueueCapacity    int           `json:"queue_capacity"`
	UseWorkers       bool          `json:"use_workers"`

	Source           string `json:"source"`
	FileIn           string `json:"file_in"`
	SerialPort       string `json:"serial_port"`
	BaudRate         int    `json:"baud_rate"`
	DataBits         int    `json:"data_bits"`
	StopBits         int    `json:"stop_bits"`
	Parity           string `json:"parity"`
	UdpPort          int    `json:"udp_port"`
	ChunkSize        int    `json:"chunk_size"`
	IgnorePointing   bool   `json:"ignore_pointing"`
	MaxPendingEvents int    `json:"max_pending_events"`

	CoeffsFile           string `json:"coeffs_file"`
	SplinesFile          string `json:"splines_file"`
	EnergyCalibrationTag string `json:"energy_calibration_tag"`

	NoDB      bool   `json:"no_db"`
	Driver    string `json:"driver"`
	Host      string `json:"host"`
	User      string `json:"user"`
	Passwd    string `json:"pass"`
	DBName    string `json:"dbname"`
	RunNumber int    `json:"run_number"`

	Geometry []DetectorGeometry `json:"geometry"`

	DumpEvents bool   `json:"dump_events"`
	DumpFile   string `json:"dump_file"`
}

// SchedulerConfig extracts the orchestrator settings.
func (c Configuration) SchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Mode: c.Mode,
		IdleBackoff: Backoff{
			Initial: time.Duration(c.IdleBackoffMs) * time.Millisecond,
			Max:     time.Duration(c.MaxIdleBackoffMs) * time.Millisecond,
		},
		TickInterval:  time.Duration(c.TickIntervalUs) * time.Microsecond,
		QueueCapacity: c.QueueCapacity,
		UseWorkers:    c.UseWorkers,
		MaxEvents:     c.MaxEvents,
		Verbosity:     c.Verbosity,
	}
}

// DatabaseConfig extracts the calibration database settings.
func (c Configuration) DatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver: c.Driver,
		Host:   c.Host,
		User:   c.User,
		Passwd: c.Passwd,
		DBName: c.DBName,
	}
}
