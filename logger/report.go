package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsReader    int64
	errorsProcessor int64
	warnsReader     int64
	warnsProcessor  int64
	streamReads     int64
	apiRequests     int64
	paperOrders     int64
	s3Writes        int64
	channels        sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "reader") {
		atomic.AddInt64(&warnsReader, 1)
	} else if strings.Contains(component, "processor") {
		atomic.AddInt64(&warnsProcessor, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "reader") {
		atomic.AddInt64(&errorsReader, 1)
	} else if strings.Contains(component, "processor") {
		atomic.AddInt64(&errorsProcessor, 1)
	}
}

// IncrementStreamRead accounts one message read from a liquidation stream.
func IncrementStreamRead(size int) {
	atomic.AddInt64(&streamReads, 1)
	recordChannel("liq_ws", size)
}

// IncrementAPIRequest accounts one handled HTTP API request.
func IncrementAPIRequest() {
	atomic.AddInt64(&apiRequests, 1)
}

// IncrementPaperOrder accounts one placed paper order.
func IncrementPaperOrder() {
	atomic.AddInt64(&paperOrders, 1)
}

// IncrementS3Write accounts one uploaded archive object.
func IncrementS3Write(size int64) {
	atomic.AddInt64(&s3Writes, 1)
	recordChannel("s3_liq_write", int(size))
}

// RecordChannelMessage accounts a message on a named internal channel.
func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// StartReport begins periodic logging of system and channel statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_reader":    atomic.LoadInt64(&errorsReader),
		"errors_processor": atomic.LoadInt64(&errorsProcessor),
		"warns_reader":     atomic.LoadInt64(&warnsReader),
		"warns_processor":  atomic.LoadInt64(&warnsProcessor),
		"stream_reads":     atomic.LoadInt64(&streamReads),
		"api_requests":     atomic.LoadInt64(&apiRequests),
		"paper_orders":     atomic.LoadInt64(&paperOrders),
		"s3_writes":        atomic.LoadInt64(&s3Writes),
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_mb":        int64(memStats.Used) / 1024 / 1024,
		"disk_mb":          int64(diskStats.Used) / 1024 / 1024,
		"channels":         channelData,
		"net_bytes_sent":   int64(bytesSent),
		"net_bytes_recv":   int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("LiqMon-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("LiqMon-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("LiqMon-StreamReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&streamReads)))},
		cwtypes.MetricDatum{MetricName: aws.String("LiqMon-APIRequests"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&apiRequests)))},
		cwtypes.MetricDatum{MetricName: aws.String("LiqMon-PaperOrders"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&paperOrders)))},
		cwtypes.MetricDatum{MetricName: aws.String("LiqMon-S3Writes"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&s3Writes)))},
		cwtypes.MetricDatum{MetricName: aws.String("LiqMon-ErrorsReader"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsReader)))},
		cwtypes.MetricDatum{MetricName: aws.String("LiqMon-ErrorsProcessor"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsProcessor)))},
		cwtypes.MetricDatum{MetricName: aws.String("LiqMon-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("LiqMon-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("LiqMon-ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("LiqMon-ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	PublishMetrics(ctx, data)
}
