package logger

import (
	"context"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Traffic counters maintained by the connector's long-running tasks. The
// report loop snapshots them on every tick; CloudWatch receives the same
// values when metric publishing is enabled.
var (
	errorsMarket   int64
	errorsTrading  int64
	warnsMarket    int64
	warnsTrading   int64
	wsFrames       int64
	ticksPublished int64
	restCalls      int64
	wsReconnects   int64
	commandResults int64
)

func recordWarn(component string) {
	if strings.Contains(component, "trading") || strings.Contains(component, "account") {
		atomic.AddInt64(&warnsTrading, 1)
	} else {
		atomic.AddInt64(&warnsMarket, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "trading") || strings.Contains(component, "account") {
		atomic.AddInt64(&errorsTrading, 1)
	} else {
		atomic.AddInt64(&errorsMarket, 1)
	}
}

// IncrementWsFrame counts one inbound websocket frame.
func IncrementWsFrame() {
	atomic.AddInt64(&wsFrames, 1)
}

// IncrementTickPublished counts one normalized market tick broadcast.
func IncrementTickPublished() {
	atomic.AddInt64(&ticksPublished, 1)
}

// IncrementRestCall counts one REST request through the gateway.
func IncrementRestCall() {
	atomic.AddInt64(&restCalls, 1)
}

// IncrementWsReconnect counts one websocket reconnect attempt.
func IncrementWsReconnect() {
	atomic.AddInt64(&wsReconnects, 1)
}

// IncrementCommandResult counts one published trading result.
func IncrementCommandResult() {
	atomic.AddInt64(&commandResults, 1)
}

// StartReport begins periodic logging of traffic and system statistics.
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

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	memoryMB := int64(0)
	if memStats != nil {
		memoryMB = int64(memStats.Used) / 1024 / 1024
	}

	fields := Fields{
		"errors_market":   atomic.LoadInt64(&errorsMarket),
		"errors_trading":  atomic.LoadInt64(&errorsTrading),
		"warns_market":    atomic.LoadInt64(&warnsMarket),
		"warns_trading":   atomic.LoadInt64(&warnsTrading),
		"ws_frames":       atomic.LoadInt64(&wsFrames),
		"ticks_published": atomic.LoadInt64(&ticksPublished),
		"rest_calls":      atomic.LoadInt64(&restCalls),
		"ws_reconnects":   atomic.LoadInt64(&wsReconnects),
		"command_results": atomic.LoadInt64(&commandResults),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       memoryMB,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memoryMB))},
		{MetricName: aws.String("WsFrames"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&wsFrames)))},
		{MetricName: aws.String("TicksPublished"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&ticksPublished)))},
		{MetricName: aws.String("RestCalls"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&restCalls)))},
		{MetricName: aws.String("WsReconnects"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&wsReconnects)))},
		{MetricName: aws.String("CommandResults"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&commandResults)))},
		{MetricName: aws.String("ErrorsMarket"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsMarket)))},
		{MetricName: aws.String("ErrorsTrading"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsTrading)))},
	}

	publishMetrics(ctx, data)
}
