// Command converse-demo runs a single conversation on the terminal: stdin
// lines become user messages, and the Pulse conversation stream is consumed
// back and printed, exercising the same path a websocket gateway would.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"goa.design/clue/log"
	"goa.design/pulse/rmap"

	"goa.design/converse/features/agents/choice"
	"goa.design/converse/features/agents/defaultagent"
	"goa.design/converse/features/agents/quiz"
	chatstore "goa.design/converse/features/chatstore/mongo"
	clientsmongo "goa.design/converse/features/chatstore/mongo/clients/mongo"
	guardsafety "goa.design/converse/features/guard/safety"
	guardsize "goa.design/converse/features/guard/size"
	"goa.design/converse/features/model/anthropic"
	"goa.design/converse/features/model/middleware"
	"goa.design/converse/features/model/openai"
	routellm "goa.design/converse/features/route/llm"
	streampulse "goa.design/converse/features/stream/pulse"
	clientspulse "goa.design/converse/features/stream/pulse/clients/pulse"
	summaryllm "goa.design/converse/features/summary/llm"
	titlellm "goa.design/converse/features/title/llm"
	"goa.design/converse/runtime/assistant"
	"goa.design/converse/runtime/model"
)

func main() {
	var (
		configF   = flag.String("config", "", "Path to YAML configuration file")
		userF     = flag.String("user", "demo", "Conversation owner")
		threadF   = flag.String("thread", "", "Thread ID (empty starts a new conversation)")
		dbgF      = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	cfg, err := LoadConfig(*configF)
	if err != nil {
		log.Fatalf(ctx, err, "load configuration")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *userF, *threadF); err != nil {
		log.Fatalf(ctx, err, "demo failed")
	}
}

func run(ctx context.Context, cfg *Config, user, thread string) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	mc, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer mc.Disconnect(context.Background())

	storeClient, err := clientsmongo.New(clientsmongo.Options{
		Client:   mc,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		return fmt.Errorf("chat store client: %w", err)
	}
	store, err := chatstore.NewStore(storeClient)
	if err != nil {
		return fmt.Errorf("chat store: %w", err)
	}

	pc, err := clientspulse.New(clientspulse.Options{Redis: rdb})
	if err != nil {
		return fmt.Errorf("pulse client: %w", err)
	}
	defer pc.Close(context.Background())

	client, err := modelClient(ctx, cfg, rdb)
	if err != nil {
		return err
	}

	router, err := routellm.New(client, routellm.Options{})
	if err != nil {
		return err
	}
	safety, err := guardsafety.New(client, guardsafety.Options{})
	if err != nil {
		return err
	}
	summarizer, err := summaryllm.New(client, summaryllm.Options{})
	if err != nil {
		return err
	}
	titler, err := titlellm.New(client, titlellm.Options{})
	if err != nil {
		return err
	}

	chatAgent, err := defaultagent.New(client, defaultagent.Options{
		Persona: assistant.Persona{
			Name:         "Elisa",
			Instructions: "You are Elisa, a friendly learning assistant.",
		},
	})
	if err != nil {
		return err
	}
	quizAgent, err := quiz.New(client, quiz.Options{})
	if err != nil {
		return err
	}
	choiceAgent, err := choice.New(choice.Options{
		Choices: []choice.Choice{
			{Activity: string(quiz.ActivityQuiz), Description: "Play a multiple choice quiz"},
		},
	})
	if err != nil {
		return err
	}

	if thread == "" {
		thread = uuid.NewString()
	}
	key := assistant.ChatKey{Username: user, ThreadID: thread}
	callback, err := streampulse.NewCallback(key, streampulse.Options{Client: pc})
	if err != nil {
		return fmt.Errorf("stream callback: %w", err)
	}

	as, err := assistant.New(ctx, assistant.Options{
		Key:         key,
		Persistence: assistant.PersistenceStrategy(cfg.Persistence),
		Registry: assistant.Registry{
			Agents:       []assistant.Agent{chatAgent, quizAgent, choiceAgent},
			DefaultAgent: chatAgent.Code(),
			Router:       router,
			GuardRails:   []assistant.GuardRail{guardsize.New(cfg.MaxMessageRunes), safety},
			Summarizer:   summarizer,
			Titles:       titler,
		},
		Callback:  callback,
		Store:     store,
		Language:  cfg.Language,
		KeepCount: cfg.KeepCount,
	})
	if err != nil {
		return fmt.Errorf("start conversation: %w", err)
	}
	key = as.Key()
	log.Printf(ctx, "conversation ready, thread %s", key.ThreadID)

	// Consume the conversation stream like a gateway would and print what
	// the client receives.
	subscriber, err := streampulse.NewSubscriber(streampulse.SubscriberOptions{Client: pc})
	if err != nil {
		return fmt.Errorf("subscriber: %w", err)
	}
	events, errs, cancel, err := subscriber.Subscribe(ctx, streampulse.DefaultStreamID(key))
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer cancel()
	go printEvents(ctx, events, errs)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			fmt.Print("> ")
			continue
		}
		if err := as.ProcessUserMessage(ctx, assistant.NewUserMessage(text)); err != nil {
			log.Errorf(ctx, err, "process message")
		}
		fmt.Print("> ")
		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}

// modelClient builds the provider adapter selected by the configuration and
// wraps it with the adaptive rate limiter, cluster-coordinated when Redis is
// reachable.
func modelClient(ctx context.Context, cfg *Config, rdb *redis.Client) (model.Client, error) {
	var (
		client model.Client
		err    error
	)
	switch cfg.Model.Provider {
	case "openai":
		client, err = openai.NewFromAPIKey(cfg.Model.APIKey, cfg.Model.Name)
	case "anthropic":
		client, err = anthropic.NewFromAPIKey(cfg.Model.APIKey, cfg.Model.Name)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("model client: %w", err)
	}

	var budget *rmap.Map
	if m, err := rmap.Join(ctx, "converse-model-budget", rdb); err == nil {
		budget = m
	} else {
		log.Infof(ctx, "cluster budget unavailable, using local rate limiter: %v", err)
	}
	limiter := middleware.NewAdaptiveRateLimiter(ctx, budget, cfg.Model.Provider, cfg.Model.TPM, cfg.Model.MaxTPM)
	return limiter.Middleware()(client), nil
}

func printEvents(ctx context.Context, events <-chan streampulse.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			fmt.Printf("\n[%s] %s\n> ", evt.Type, evt.Payload)
		case err, ok := <-errs:
			if !ok {
				return
			}
			log.Errorf(ctx, err, "stream consumption")
		}
	}
}
