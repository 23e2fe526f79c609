package coordinator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh/agent"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/memory"
	"github.com/hupe1980/toolmesh/model"
)

func custom(m model.Model) model.Provider {
	return model.Provider{Kind: model.KindCustom, Custom: m}
}

type fixture struct {
	registry *agent.Registry
	factory  *agent.Factory
	store    *memory.InMemoryStore
	router   *model.MockModel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewInMemoryStore()

	return &fixture{
		registry: agent.NewRegistry(),
		factory:  agent.NewFactory(func(o *agent.FactoryOptions) { o.Memory = store }),
		store:    store,
		router:   model.NewMockModel("router", "custom"),
	}
}

func (f *fixture) addAgent(t *testing.T, name string, m model.Model) {
	t.Helper()

	a, err := f.factory.Build(agent.Descriptor{Name: name, Description: name + " expert", Provider: custom(m)})
	require.NoError(t, err)
	require.NoError(t, f.registry.Register(a))
}

func (f *fixture) coordinator(optFns ...func(o *Options)) *Coordinator {
	base := func(o *Options) {
		o.Provider = custom(f.router)
		o.UseMemory = true
	}
	return New(f.registry, f.factory, append([]func(o *Options){base}, optFns...)...)
}

func lastToolResponse(req model.Request) string {
	for i := len(req.Contents) - 1; i >= 0; i-- {
		for _, p := range req.Contents[i].Parts {
			if fr, ok := p.(core.FunctionResponsePart); ok {
				return fr.FunctionResponse.Response
			}
		}
	}
	return ""
}

func TestDelegationToolName(t *testing.T) {
	assert.Equal(t, "ask_weather_agent", DelegationToolName("Weather Agent"))
	assert.Equal(t, "ask_math_expert", DelegationToolName("MathExpert"))
}

func TestCoordinator_NoAgents(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator()

	_, err := c.ProcessMessage(context.Background(), "hello")
	require.Error(t, err)

	var initErr *core.CoordinatorInitializationError
	require.ErrorAs(t, err, &initErr)
	assert.ErrorIs(t, err, core.ErrNoAgents)
	assert.False(t, c.Ready())

	// Registering an agent later lets the next call initialize.
	f.addAgent(t, "Echo", model.NewMockModel("echo", "custom"))
	f.router.Enqueue("hi")

	reply, err := c.ProcessMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi", reply)
	assert.True(t, c.Ready())
	assert.Equal(t, []string{"Echo"}, c.Agents())
}

func TestCoordinator_DelegatesToAgent(t *testing.T) {
	f := newFixture(t)

	weather := model.NewMockModel("weather", "custom")
	weather.Enqueue("Sunny in Paris")
	f.addAgent(t, "Weather Agent", weather)

	f.router.EnqueueToolCall(core.FunctionCall{ID: "d1", Name: "ask_weather_agent", Arguments: `{"task":"weather in Paris"}`})
	f.router.Enqueue("It is sunny in Paris.")

	c := f.coordinator()
	require.NoError(t, c.Init(context.Background()))

	reply, err := c.ProcessMessage(context.Background(), "How is the weather in Paris?", WithSession("s1"))
	require.NoError(t, err)
	assert.Equal(t, "It is sunny in Paris.", reply)

	reqs := f.router.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "ask_weather_agent", reqs[0].Tools[0].Function.Name)
	assert.Contains(t, reqs[0].Contents[0].Text(), "Weather Agent (ask_weather_agent)")
	assert.Equal(t, "Sunny in Paris", lastToolResponse(reqs[1]))

	sub := weather.Requests()
	require.Len(t, sub, 1)
	assert.Equal(t, "weather in Paris", sub[0].Contents[len(sub[0].Contents)-1].Text())
}

func TestCoordinator_DelegationFailureIsText(t *testing.T) {
	f := newFixture(t)

	broken := model.NewMockModel("broken", "custom")
	broken.FailWith(errors.New("provider down"))
	f.addAgent(t, "Broken", broken)

	f.router.EnqueueToolCall(core.FunctionCall{ID: "d1", Name: "ask_broken", Arguments: `{"task":"do it"}`})
	f.router.Enqueue("Sorry, the Broken agent is unavailable.")

	c := f.coordinator()

	reply, err := c.ProcessMessage(context.Background(), "please do it")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, the Broken agent is unavailable.", reply)

	result := lastToolResponse(f.router.Requests()[1])
	assert.True(t, strings.HasPrefix(result, `agent "Broken" failed to process the task:`), result)
	assert.Contains(t, result, "provider down")
}

func TestCoordinator_SessionMemory(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "Echo", model.NewMockModel("echo", "custom"))

	f.router.Enqueue("Paris is in France.")
	f.router.Enqueue("You asked where Paris is.")

	c := f.coordinator()
	ctx := context.Background()

	_, err := c.ProcessMessage(ctx, "Where is Paris?", WithSession("s1"))
	require.NoError(t, err)
	_, err = c.ProcessMessage(ctx, "what did I just ask?", WithSession("s1"))
	require.NoError(t, err)

	second := f.router.Requests()[1].Contents
	require.Len(t, second, 4)
	assert.Equal(t, "Where is Paris?", second[1].Text())
	assert.Equal(t, "Paris is in France.", second[2].Text())
	assert.Equal(t, "what did I just ask?", second[3].Text())

	msgs, err := f.store.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, core.MessageAI, msgs[3].Role)
	assert.Equal(t, "You asked where Paris is.", msgs[3].Content)
}

func TestCoordinator_StreamingPersistsFullReply(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "Echo", model.NewMockModel("echo", "custom"))
	f.router.Enqueue("streamed reply")

	c := f.coordinator()

	var tokens []string
	reply, err := c.ProcessMessage(context.Background(), "stream please",
		WithSession("s2"),
		WithStreaming(func(tok string) { tokens = append(tokens, tok) }),
	)
	require.NoError(t, err)
	assert.Equal(t, "streamed reply", reply)
	assert.Equal(t, reply, strings.Join(tokens, ""))
	assert.Greater(t, len(tokens), 1)

	msgs, err := f.store.Messages(context.Background(), "s2")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "stream please", msgs[0].Content)
	assert.Equal(t, "streamed reply", msgs[1].Content)
}

func TestCoordinator_GlobalStreamingCallback(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "Echo", model.NewMockModel("echo", "custom"))
	f.router.Enqueue("abc")

	var got strings.Builder
	c := f.coordinator(func(o *Options) {
		o.Streaming = true
		o.OnToken = func(tok string) { got.WriteString(tok) }
	})

	_, err := c.ProcessMessage(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.String())
}

func TestCoordinator_DeferredStart(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(func(o *Options) { o.StartupDelay = 20 * time.Millisecond })

	c.Start(context.Background())

	// Registered after Start but before the delay elapses.
	f.addAgent(t, "Late", model.NewMockModel("late", "custom"))

	require.Eventually(t, c.Ready, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Late"}, c.Agents())
}

func TestCoordinator_ModelFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "Echo", model.NewMockModel("echo", "custom"))
	f.router.FailWith(errors.New("router down"))

	c := f.coordinator()

	_, err := c.ProcessMessage(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "router down")
}

func TestCoordinator_DelegatedMemoryStaysOutOfUserSession(t *testing.T) {
	f := newFixture(t)

	math := model.NewMockModel("math", "custom")
	math.Enqueue("4")
	a, err := f.factory.Build(agent.Descriptor{Name: "Math", Provider: custom(math), UseMemory: true})
	require.NoError(t, err)
	require.NoError(t, f.registry.Register(a))

	f.router.EnqueueToolCall(core.FunctionCall{ID: "d1", Name: "ask_math", Arguments: `{"task":"compute 2+2"}`})
	f.router.Enqueue("It is 4.")

	c := f.coordinator()
	ctx := context.Background()

	reply, err := c.ProcessMessage(ctx, "what is 2+2?", WithSession("s1"))
	require.NoError(t, err)
	assert.Equal(t, "It is 4.", reply)

	msgs, err := f.store.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, core.MessageHuman, msgs[0].Role)
	assert.Equal(t, "what is 2+2?", msgs[0].Content)
	assert.Equal(t, core.MessageAI, msgs[1].Role)
	assert.Equal(t, "It is 4.", msgs[1].Content)

	sub, err := f.store.Messages(ctx, "s1/Math")
	require.NoError(t, err)
	require.Len(t, sub, 2)
	assert.Equal(t, "compute 2+2", sub[0].Content)
	assert.Equal(t, "4", sub[1].Content)
}
