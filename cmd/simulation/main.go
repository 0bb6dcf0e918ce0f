package main

import (
	"context"
	"flag"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyeonwoo-dev/kiwoom-trader/internal/broker"
	"github.com/hyeonwoo-dev/kiwoom-trader/internal/history"
	"github.com/hyeonwoo-dev/kiwoom-trader/internal/strategy"
	"github.com/hyeonwoo-dev/kiwoom-trader/internal/trading"
)

const (
	account    = "8112223411"
	numWorkers = 4
)

var codes = []struct {
	code  string
	name  string
	price int64
}{
	{"005930", "삼성전자", 70000},
	{"000660", "SK하이닉스", 180000},
	{"035420", "NAVER", 210000},
	{"035720", "카카오", 48000},
	{"051910", "LG화학", 420000},
}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// submitStats tracks submission latencies and failures across workers.
type submitStats struct {
	mu        sync.Mutex
	durations []time.Duration
	failures  int
}

func (s *submitStats) add(d time.Duration) {
	s.mu.Lock()
	s.durations = append(s.durations, d)
	s.mu.Unlock()
}

func (s *submitStats) fail() {
	s.mu.Lock()
	s.failures++
	s.mu.Unlock()
}

// calculate computes min, max, mean, median and 95th percentile durations.
func (s *submitStats) calculate() (min, max, mean, median, p95 time.Duration) {
	if len(s.durations) == 0 {
		return
	}
	sort.Slice(s.durations, func(i, j int) bool { return s.durations[i] < s.durations[j] })

	min = s.durations[0]
	max = s.durations[len(s.durations)-1]

	var sum time.Duration
	for _, d := range s.durations {
		sum += d
	}
	mean = sum / time.Duration(len(s.durations))
	median = s.durations[len(s.durations)/2]

	p95idx := int(math.Ceil(float64(len(s.durations))*0.95)) - 1
	p95 = s.durations[p95idx]
	return
}

// main runs an end-to-end scenario against the simulated broker session:
// a batch of random orders with auto-cancel and auto-modify policies, then
// an activity summary once everything settles.
func main() {
	numOrders := flag.Int("orders", 30, "orders to submit")
	rejectRate := flag.Float64("reject-rate", 0.05, "synchronous rejection probability")
	historyDir := flag.String("history-dir", "", "history directory (default: temp)")
	flag.Parse()

	dir := *historyDir
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "kiwoom-sim-history")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create history dir")
		}
		defer os.RemoveAll(dir)
	}

	simCfg := broker.DefaultSimConfig()
	simCfg.RejectRate = *rejectRate
	simCfg.FillSlices = 3
	session := broker.NewSimSession(simCfg)

	store := trading.NewOrderStore()
	balances := trading.NewBalanceBook()
	notifier := trading.NewNotifier()
	bridge := trading.NewSyncBridge(session, 5*time.Second)
	gateway := trading.NewGateway(bridge, store, "")
	policies := trading.NewPolicyEngine(store, gateway)

	recorder, err := history.NewRecorder(dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create history recorder")
	}

	listener := trading.NewExecutionListener(store, balances, policies, notifier, recorder)
	listener.Bind(session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := session.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect session")
	}
	defer session.Close()
	go policies.Start(ctx, 200*time.Millisecond)

	// Count notifications in the background the way a UI client would.
	sub, unsubscribe := notifier.Subscribe(256)
	noteCount := make(chan int, 1)
	go func() {
		n := 0
		for range sub {
			n++
		}
		noteCount <- n
	}()

	// Advisory mean-reversion signals off the same notification stream.
	advisor := strategy.NewBollingerReversion(10, 2.0)
	advisorSub, advisorCancel := notifier.Subscribe(256)
	var signalCount int64
	advisorDone := make(chan struct{})
	go func() {
		defer close(advisorDone)
		advisor.WatchBalances(advisorSub, func(code string, sig strategy.Signal, price int64) {
			atomic.AddInt64(&signalCount, 1)
			log.Info().
				Str("code", code).
				Str("signal", sig.String()).
				Int64("price", price).
				Msg("Mean-reversion signal")
		})
	}()

	log.Info().Int("orders", *numOrders).Float64("reject_rate", *rejectRate).Msg("Starting simulation")

	stats := &submitStats{}
	jobs := make(chan int)
	done := make(chan struct{})
	for w := 0; w < numWorkers; w++ {
		go func() {
			for range jobs {
				submitOne(gateway, policies, stats)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < *numOrders; i++ {
		jobs <- i
	}
	close(jobs)
	for w := 0; w < numWorkers; w++ {
		<-done
	}

	// Let fills, policies and late callbacks drain.
	deadline := time.After(10 * time.Second)
	for len(store.Outstanding()) > 0 {
		select {
		case <-deadline:
			log.Warn().Int("outstanding", len(store.Outstanding())).Msg("Giving up waiting for settlement")
		case <-time.After(100 * time.Millisecond):
			continue
		}
		break
	}

	unsubscribe()
	advisorCancel()
	notifications := <-noteCount
	<-advisorDone

	min, max, mean, median, p95 := stats.calculate()
	log.Info().
		Int("submitted", len(stats.durations)).
		Int("failures", stats.failures).
		Dur("min", min).
		Dur("max", max).
		Dur("mean", mean).
		Dur("median", median).
		Dur("p95", p95).
		Msg("Submission latency")

	sum, err := history.NewAnalytics(recorder).Summarize(time.Now(), time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to summarize history")
	}
	log.Info().
		Int64("events", sum.TotalEvents).
		Int64("orders", sum.TotalOrders).
		Int64("buys", sum.BuyOrders).
		Int64("sells", sum.SellOrders).
		Int64("filled_qty", sum.FilledQty).
		Int64("total_value", sum.TotalValue).
		Float64("avg_value", sum.AvgValue).
		Int("notifications", notifications).
		Int64("signals", atomic.LoadInt64(&signalCount)).
		Msg("Simulation complete")

	for code, cs := range sum.ByCode {
		log.Info().
			Str("code", code).
			Str("name", cs.Name).
			Int64("orders", cs.Orders).
			Int64("events", cs.Events).
			Int64("filled_qty", cs.FilledQty).
			Msg("Per-code activity")
	}
	for status, n := range sum.StatusCounts {
		log.Info().Str("status", status).Int64("orders", n).Msg("Final status")
	}
}

// submitOne submits a random order and arms policies on a subset of them.
func submitOne(gateway *trading.Gateway, policies *trading.PolicyEngine, stats *submitStats) {
	pick := codes[rand.Intn(len(codes))]
	side := trading.SideBuy
	if rand.Intn(2) == 1 {
		side = trading.SideSell
	}
	qty := int64(rand.Intn(20) + 1)
	// Quote a little off the reference price so auto-modify has work to do.
	price := pick.price - int64(rand.Intn(5))*100

	start := time.Now()
	orderID, err := gateway.SubmitNew(context.Background(), account, pick.code, side, qty, price, trading.PriceLimit)
	if err != nil {
		stats.fail()
		log.Debug().Err(err).Str("code", pick.code).Msg("Submission failed")
		return
	}
	stats.add(time.Since(start))

	switch rand.Intn(3) {
	case 0:
		if err := policies.Monitor(orderID); err == nil {
			policies.SetAutoCancel(orderID, 5*time.Second, 2000, 0)
		}
	case 1:
		if err := policies.Monitor(orderID); err == nil {
			policies.SetAutoModify(orderID, pick.price, 100, 3)
		}
	}
}
