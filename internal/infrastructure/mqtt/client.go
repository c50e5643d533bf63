package mqtt

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the session controller.
//
// The client is deliberately thin: it owns the broker connection, the
// lifecycle notice and the Last Will, but not the subscription set. The
// session controller replays subscriptions after every (re)connect, so
// Subscribe here is a single broker round trip with no bookkeeping.
//
// Every inbound message is delivered to the callback installed with
// SetOnMessage, regardless of which subscription matched.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   pahomqtt.Client
	options  *pahomqtt.ClientOptions
	cfg      config.MQTTConfig
	host     string
	clientID string

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	onMessage    func(topic string, payload []byte)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// New builds a Client without connecting.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - host: Host name used for the client id and the status topic
//
// Returns:
//   - *Client: Client ready for Connect
func New(cfg config.MQTTConfig, host string) *Client {
	clientID := cfg.Broker.ClientID
	if clientID == "" {
		clientID = DefaultClientID(host)
	}

	c := &Client{
		cfg:      cfg,
		host:     host,
		clientID: clientID,
	}

	opts := buildClientOptions(cfg, clientID)
	configureLWT(opts, host, clientID)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.handleMessage(msg)
	})

	c.options = opts
	c.client = pahomqtt.NewClient(opts)
	return c
}

// DefaultClientID returns "<host>.<pid>".
func DefaultClientID(host string) string {
	return fmt.Sprintf("%s.%d", host, os.Getpid())
}

// ClientID returns the identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

// Connect makes one attempt to connect to the broker.
//
// The attempt is bounded by defaultConnectTimeout and by ctx. Retrying is
// the caller's job; paho's own connect-retry is disabled. Once connected,
// lost connections are re-established by paho's auto-reconnect and
// reported through the OnConnect/OnDisconnect callbacks.
//
// Returns:
//   - error: wraps ErrConnectionFailed or ErrTimeout
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()

	timer := time.NewTimer(defaultConnectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%w: connect after %v", ErrTimeout, defaultConnectTimeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return nil
}

// handleConnect is called by paho on the initial connection and every reconnect.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.publishStatus(buildOnlinePayload(c.clientID))

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// handleMessage forwards an inbound message to the OnMessage callback.
// The payload is copied; paho may reuse the underlying buffer.
func (c *Client) handleMessage(msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT message callback panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}
	}()

	c.callbackMu.RLock()
	callback := c.onMessage
	c.callbackMu.RUnlock()
	if callback == nil {
		return
	}

	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())
	callback(msg.Topic(), payload)
}

func (c *Client) publishStatus(payload string) {
	token := c.client.Publish(Topics{}.Status(c.host), byte(c.cfg.QoS), true, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("status publish timed out")
		}
		return
	}
	if err := token.Error(); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("status publish failed", "error", err)
		}
	}
}

// Disconnect publishes the graceful offline notice and disconnects.
//
// Returns:
//   - error: always nil; a connection that is already down is not an error
func (c *Client) Disconnect() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus(buildOfflinePayload(c.clientID))
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback invoked on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetOnMessage sets the callback that receives every inbound message.
// It is called on paho's delivery goroutine and must not block.
func (c *Client) SetOnMessage(callback func(topic string, payload []byte)) {
	c.callbackMu.Lock()
	c.onMessage = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
