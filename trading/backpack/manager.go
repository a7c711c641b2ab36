package backpack

import (
	"context"
	"fmt"
	"sync"
	"time"

	"backpackflow/internal/channel"
	"backpackflow/logger"
	"backpackflow/models"
)

// TradingManager drives the trading side: it consumes commands, executes
// them through the client and keeps the position and balance snapshots fresh
// via a poll loop that backs up the account websocket.
type TradingManager struct {
	client       *TradingClient
	channels     *channel.Channels
	commands     <-chan models.TradingCommand
	exchange     string
	pollInterval time.Duration
	log          *logger.Log
	wg           *sync.WaitGroup
	mu           sync.Mutex
	running      bool
}

// NewTradingManager wires the manager to the inbound command channel and the
// output broadcasters.
func NewTradingManager(client *TradingClient, channels *channel.Channels, commands <-chan models.TradingCommand, pollInterval time.Duration) *TradingManager {
	return &TradingManager{
		client:       client,
		channels:     channels,
		commands:     commands,
		exchange:     client.exchange,
		pollInterval: pollInterval,
		log:          logger.GetLogger(),
		wg:           &sync.WaitGroup{},
	}
}

// Start launches the command and poll loops.
func (m *TradingManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("trading manager already running")
	}
	m.running = true
	m.mu.Unlock()

	m.log.WithComponent("trading_manager").WithFields(logger.Fields{
		"poll_interval": m.pollInterval,
	}).Info("starting trading manager")

	m.wg.Add(2)
	go m.commandLoop(ctx)
	go m.pollLoop(ctx)
	return nil
}

// Stop waits for both loops to exit.
func (m *TradingManager) Stop() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *TradingManager) commandLoop(ctx context.Context) {
	defer m.wg.Done()
	log := m.log.WithComponent("trading_manager")

	for {
		select {
		case <-ctx.Done():
			return
		case command, ok := <-m.commands:
			if !ok {
				return
			}
			if command.Exchange != m.exchange {
				continue
			}
			result := m.execute(ctx, command)
			m.channels.TradingResults.Publish(result)
			logger.IncrementCommandResult()
			if !result.Success {
				log.WithFields(logger.Fields{
					"command_id": command.CommandID,
					"action":     command.Action,
					"symbol":     command.Symbol,
					"error":      result.ErrorMessage,
				}).Warn("trading command failed")
			}
		}
	}
}

// execute runs one command and always produces a result, success or failure.
func (m *TradingManager) execute(ctx context.Context, command models.TradingCommand) models.TradingResult {
	switch command.Action {
	case models.ActionPlace:
		orderID, err := m.client.PlaceOrder(ctx, command)
		if err != nil {
			return models.FailedResult(command.CommandID, err.Error())
		}
		return models.TradingResult{
			CommandID: command.CommandID,
			Success:   true,
			OrderID:   orderID,
			Timestamp: time.Now().UnixMilli(),
		}
	case models.ActionCancel:
		if command.OrderID == "" {
			return models.FailedResult(command.CommandID, "cancel command missing order id")
		}
		if err := m.client.CancelOrder(ctx, command.OrderID, command.Symbol); err != nil {
			return models.FailedResult(command.CommandID, err.Error())
		}
		return models.TradingResult{
			CommandID: command.CommandID,
			Success:   true,
			OrderID:   command.OrderID,
			Timestamp: time.Now().UnixMilli(),
		}
	default:
		return models.FailedResult(command.CommandID, fmt.Sprintf("unsupported action: %s", command.Action))
	}
}

// pollLoop refreshes positions and balances over REST as a backup to the
// account websocket. Consumers must tolerate the resulting duplicates.
func (m *TradingManager) pollLoop(ctx context.Context) {
	defer m.wg.Done()
	log := m.log.WithComponent("trading_manager")

	for {
		if positions, err := m.client.GetPositions(ctx); err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("position poll failed")
			}
		} else {
			m.channels.Positions.Publish(positions)
		}

		if balances, err := m.client.GetAccountBalance(ctx); err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("balance poll failed")
			}
		} else {
			m.channels.Balances.Publish(balances)
		}

		select {
		case <-time.After(m.pollInterval):
		case <-ctx.Done():
			return
		}
	}
}
