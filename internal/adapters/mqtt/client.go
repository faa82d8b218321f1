package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/mikey-austin/clautify/internal/adapters/tlsconfig"
	"github.com/mikey-austin/clautify/internal/ports"
	"github.com/mikey-austin/clautify/pkg/mu"
)

// ErrTimeout is returned when no reply arrives in time.
var ErrTimeout = errors.New("timeout waiting for reply")

// Options configures the MQTT client.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLSCA     string
	TLSCert   string
	TLSKey    string
	TopicBase string
	Timeout   time.Duration
	Clock     ports.Clock
	IDGen     ports.IDGen
}

// Client publishes command envelopes to nodes and waits for replies.
type Client struct {
	client     paho.Client
	replyTopic string
	topicBase  string
	from       string
	timeout    time.Duration
	clock      ports.Clock
	ids        ports.IDGen

	mu            sync.Mutex
	replyHandlers map[string]chan mu.ReplyEnvelope
}

// NewClient creates and connects an MQTT client.
func NewClient(opts Options) (*Client, error) {
	if opts.TopicBase == "" {
		opts.TopicBase = mu.BaseTopic
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Clock == nil || opts.IDGen == nil {
		return nil, errors.New("mqtt client requires a clock and id generator")
	}
	if opts.ClientID == "" {
		opts.ClientID = "clautify-" + opts.IDGen.NewID()
	}

	c := &Client{
		replyTopic:    mu.TopicReply(opts.TopicBase, opts.ClientID),
		topicBase:     opts.TopicBase,
		from:          opts.ClientID,
		timeout:       opts.Timeout,
		clock:         opts.Clock,
		ids:           opts.IDGen,
		replyHandlers: map[string]chan mu.ReplyEnvelope{},
	}

	clientOpts := paho.NewClientOptions().AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetOnConnectHandler(func(client paho.Client) {
		token := client.Subscribe(c.replyTopic, 1, c.handleReply)
		token.Wait()
	})

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	tlsConfig, err := tlsconfig.Client(opts.TLSCA, opts.TLSCert, opts.TLSKey)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	c.client = paho.NewClient(clientOpts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	if token := c.client.Subscribe(c.replyTopic, 1, c.handleReply); token.Wait() && token.Error() != nil {
		c.client.Disconnect(250)
		return nil, token.Error()
	}

	return c, nil
}

// ReplyTopic returns the topic used for replies.
func (c *Client) ReplyTopic() string {
	return c.replyTopic
}

// Request wraps body in a fresh envelope, publishes it to nodeID and
// waits for the reply.
func (c *Client) Request(ctx context.Context, nodeID, cmdType string, body any) (mu.ReplyEnvelope, error) {
	cmd, err := mu.NewCommand(cmdType, body)
	if err != nil {
		return mu.ReplyEnvelope{}, err
	}
	cmd.ID = c.ids.NewID()
	cmd.TS = c.clock.NowUnix()
	cmd.From = c.from
	cmd.ReplyTo = c.replyTopic
	return c.PublishCommand(ctx, nodeID, cmd)
}

// PublishCommand publishes a command and waits for a reply.
func (c *Client) PublishCommand(ctx context.Context, nodeID string, cmd mu.CommandEnvelope) (mu.ReplyEnvelope, error) {
	if !c.client.IsConnectionOpen() {
		return mu.ReplyEnvelope{}, errors.New("mqtt connection is not open")
	}
	req, err := json.Marshal(cmd)
	if err != nil {
		return mu.ReplyEnvelope{}, fmt.Errorf("marshal command: %w", err)
	}

	replyCh := make(chan mu.ReplyEnvelope, 1)
	c.mu.Lock()
	c.replyHandlers[cmd.ID] = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.replyHandlers, cmd.ID)
		c.mu.Unlock()
	}()

	topic := mu.TopicCommands(c.topicBase, nodeID)
	if token := c.client.Publish(topic, 1, false, req); token.Wait() && token.Error() != nil {
		return mu.ReplyEnvelope{}, token.Error()
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return mu.ReplyEnvelope{}, ctx.Err()
	case reply := <-replyCh:
		return reply, nil
	case <-timer.C:
		return mu.ReplyEnvelope{}, ErrTimeout
	}
}

// ListPresence collects retained presence messages.
func (c *Client) ListPresence(ctx context.Context) ([]mu.Presence, error) {
	collect := make(map[string]mu.Presence)
	muLock := sync.Mutex{}

	handler := func(_ paho.Client, msg paho.Message) {
		var presence mu.Presence
		if err := json.Unmarshal(msg.Payload(), &presence); err != nil {
			return
		}
		muLock.Lock()
		collect[presence.NodeID] = presence
		muLock.Unlock()
	}

	topic := mu.TopicPresenceAll(c.topicBase)
	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	defer func() {
		token := c.client.Unsubscribe(topic)
		token.Wait()
	}()

	wait := time.NewTimer(250 * time.Millisecond)
	select {
	case <-ctx.Done():
		wait.Stop()
	case <-wait.C:
	}

	muLock.Lock()
	defer muLock.Unlock()
	out := make([]mu.Presence, 0, len(collect))
	for _, presence := range collect {
		out = append(out, presence)
	}
	return out, nil
}

// Close disconnects from the broker.
func (c *Client) Close() error {
	c.client.Disconnect(250)
	return nil
}

func (c *Client) handleReply(_ paho.Client, msg paho.Message) {
	var reply mu.ReplyEnvelope
	if err := json.Unmarshal(msg.Payload(), &reply); err != nil {
		return
	}

	c.mu.Lock()
	ch, ok := c.replyHandlers[reply.ID]
	c.mu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- reply:
	default:
	}
}
