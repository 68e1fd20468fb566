// Package database records finished packing runs: one metadata point
// per run and one point per placed circuit. Recording is optional and
// never fails a run; when InfluxDB is unreachable the records are
// spooled to disk instead.
package database

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"qcpack/internal/bin"
	"qcpack/internal/config"
	"qcpack/internal/logging"
	"qcpack/internal/manager"
)

// RunRecord is the metadata of one packing run.
type RunRecord struct {
	RunID         string `json:"run_id"`
	RunName       string `json:"run_name"`
	Packer        string `json:"packer"`
	Started       string `json:"started"`
	Finished      string `json:"finished"`
	DurationMS    int64  `json:"duration_ms"`
	TotalCircuits int    `json:"total_circuits"`
	TotalBins     int    `json:"total_bins"`
	TotalBackends int    `json:"total_backends"`
	Hostname      string `json:"hostname"`
	OSInfo        string `json:"os_info"`
	ConfigFile    string `json:"config_file"`
}

// PlacementRecord is one hosted circuit in one realized bin.
type PlacementRecord struct {
	RunID          string `json:"run_id"`
	Backend        string `json:"backend"`
	Bin            string `json:"bin"`
	Circuit        string `json:"circuit"`
	OriginalIndex  int    `json:"original_index"`
	NumQubits      int    `json:"num_qubits"`
	PhysicalQubits []int  `json:"physical_qubits"`
	NumCouplers    int    `json:"num_couplers"`
	HostDepth      int    `json:"host_depth"`
}

// NewRunRecord assembles the run metadata from a finished result.
func NewRunRecord(runName, packerName, configContent string, r *manager.Result, started, finished time.Time) *RunRecord {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	total := 0
	bins := 0
	backends := 0
	for _, hosts := range r.Hosts {
		backends++
		bins += len(hosts)
		for _, host := range hosts {
			if hosted, err := bin.Hosted(host); err == nil {
				total += len(hosted)
			}
		}
	}
	return &RunRecord{
		RunID:         uuid.New().String(),
		RunName:       runName,
		Packer:        packerName,
		Started:       started.Format(time.RFC3339),
		Finished:      finished.Format(time.RFC3339),
		DurationMS:    finished.Sub(started).Milliseconds(),
		TotalCircuits: total,
		TotalBins:     bins,
		TotalBackends: backends,
		Hostname:      hostname,
		OSInfo:        runtime.GOOS + "/" + runtime.GOARCH,
		ConfigFile:    configContent,
	}
}

// Placements flattens a result into one record per hosted circuit.
func Placements(run *RunRecord, r *manager.Result) ([]PlacementRecord, error) {
	var out []PlacementRecord
	for backendName, hosts := range r.Hosts {
		for _, host := range hosts {
			hosted, err := bin.Hosted(host)
			if err != nil {
				return nil, err
			}
			depth := host.Depth()
			for _, h := range hosted {
				idx, err := manager.OriginalIndex(h.Metadata)
				if err != nil {
					return nil, err
				}
				out = append(out, PlacementRecord{
					RunID:          run.RunID,
					Backend:        backendName,
					Bin:            host.Name,
					Circuit:        h.Name,
					OriginalIndex:  idx,
					NumQubits:      len(h.PhysicalQubits),
					PhysicalQubits: h.PhysicalQubits,
					NumCouplers:    len(h.Couplers),
					HostDepth:      depth,
				})
			}
		}
	}
	return out, nil
}

type InfluxDBClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
	org      string
}

func NewInfluxDBClient(cfg config.DatabaseConfig) (*InfluxDBClient, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(cfg.Host, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logger.WithField("host", cfg.Host).WithError(err).Error("Failed to connect to InfluxDB")
		return nil, err
	}
	if health.Status != "pass" {
		logger.WithFields(logrus.Fields{
			"host":    cfg.Host,
			"status":  health.Status,
			"message": health.Message,
		}).Error("InfluxDB health check failed")
		return nil, fmt.Errorf("influxdb health check failed: %s", health.Status)
	}

	logger.WithFields(logrus.Fields{
		"host":   cfg.Host,
		"bucket": cfg.Bucket,
		"org":    cfg.Org,
	}).Info("Connected to InfluxDB")

	return &InfluxDBClient{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		org:      cfg.Org,
	}, nil
}

func (idb *InfluxDBClient) WriteRunMetadata(run *RunRecord) error {
	point := influxdb2.NewPoint("packing_meta",
		map[string]string{
			"run_id": run.RunID,
		},
		map[string]interface{}{
			"run_name":       run.RunName,
			"packer":         run.Packer,
			"started":        run.Started,
			"finished":       run.Finished,
			"duration_ms":    run.DurationMS,
			"total_circuits": run.TotalCircuits,
			"total_bins":     run.TotalBins,
			"total_backends": run.TotalBackends,
			"hostname":       run.Hostname,
			"os_info":        run.OSInfo,
			"config_file":    run.ConfigFile,
		},
		time.Now())
	if err := idb.writeAPI.WritePoint(context.Background(), point); err != nil {
		return fmt.Errorf("failed to write run metadata: %w", err)
	}
	return nil
}

func (idb *InfluxDBClient) WritePlacements(placements []PlacementRecord) error {
	var points []*write.Point
	for _, p := range placements {
		points = append(points, influxdb2.NewPoint("packing_placements",
			map[string]string{
				"run_id":  p.RunID,
				"backend": p.Backend,
				"bin":     p.Bin,
			},
			map[string]interface{}{
				"circuit":        p.Circuit,
				"original_index": p.OriginalIndex,
				"num_qubits":     p.NumQubits,
				"num_couplers":   p.NumCouplers,
				"host_depth":     p.HostDepth,
			},
			time.Now()))
	}
	if len(points) > 0 {
		if err := idb.writeAPI.WritePoint(context.Background(), points...); err != nil {
			return fmt.Errorf("failed to write placement points: %w", err)
		}
	}
	return nil
}

func (idb *InfluxDBClient) Close() {
	if idb.client != nil {
		idb.client.Close()
	}
}
