package main

import (
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"contracker/db"
	"contracker/db/migrations"
	"contracker/internal/auth"
	"contracker/internal/external"
	"contracker/internal/handlers"
)

const (
	bidEvaluateInterval  = 5 * time.Minute
	votingCloseInterval  = 10 * time.Minute
	sweepRequestTimeout  = 30 * time.Second
	defaultServerAddress = "0.0.0.0:8080"
)

func main() {
	_ = godotenv.Load()

	connString := os.Getenv("POSTGRES_CONN")
	if connString == "" {
		log.Fatal("POSTGRES_CONN env variable is not set")
	}

	dbConn, err := sqlx.Connect("postgres", connString)
	if err != nil {
		log.Fatalf("Cannot connect to DB: %v", err)
	}
	defer dbConn.Close()

	if err := migrations.Run(connString, migrations.Dir()); err != nil {
		log.Fatalf("Migrations failed: %v", err)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET env variable is not set")
	}

	// Внешние службы: без адресов работают заглушки.
	var verifier external.Verifier = external.StubVerifier{}
	if url := os.Getenv("VERIFY_URL"); url != "" {
		verifier = external.NewHTTPVerifier(url)
	}
	var releaser external.FundReleaser
	if url := os.Getenv("PAYOUT_URL"); url != "" {
		releaser = external.NewHTTPFundReleaser(url)
	} else {
		log.Print("PAYOUT_URL is not set, fund release runs in stub mode")
		releaser = external.StubFundReleaser{}
	}

	store := db.NewStorage(dbConn)
	h := handlers.NewHandler(store, verifier, releaser, external.LogNotifier{})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)

		// сервисные обходы, дергает планировщик
		r.Post("/bid-evaluate", h.EvaluateClosedTendersHandler)
		r.Post("/public-voting-close", h.ClosePublicVotingHandler)

		// всё остальное — только с токеном
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware([]byte(secret)))

			// подрядчики
			r.Post("/contractors/new", h.CreateContractorHandler)

			// тендеры
			r.Post("/tenders/new", h.CreateTenderHandler)
			r.Get("/tenders", h.GetTendersHandler)
			r.Get("/tenders/{tenderId}", h.GetTenderHandler)
			r.Put("/tenders/{tenderId}/status", h.ChangeTenderStatusHandler)
			r.Get("/tenders/{tenderId}/bids", h.GetBidsForTenderHandler)

			// предложения (bids)
			r.Post("/bids/new", h.PlaceBidHandler)
			r.Get("/bids/my", h.GetMyBidsHandler)
			r.Post("/bid-approve", h.ApproveWinnerHandler)

			// контракты и согласование плана этапов
			r.Get("/contracts/my", h.GetMyContractsHandler)
			r.Get("/contracts/{contractId}", h.GetContractHandler)
			r.Post("/contracts/{contractId}/rate", h.RateContractorHandler)
			r.Post("/contracts/{contractId}/milestones/propose", h.ProposeMilestonesHandler)
			r.Post("/contracts/{contractId}/milestones/accept", h.AcceptMilestonesHandler)
			r.Post("/contracts/{contractId}/milestones/counter", h.CounterProposeHandler)
			r.Post("/contracts/{contractId}/milestones/accept-counter", h.AcceptCounterProposalHandler)
			r.Post("/contracts/{contractId}/milestones/re-propose", h.ReproposeMilestonesHandler)

			// исполнение этапов
			r.Post("/contracts/{contractId}/milestones/{position}/submit", h.SubmitMilestoneHandler)
			r.Post("/contracts/{contractId}/milestones/{position}/vote", h.CastPublicVoteHandler)
			r.Get("/contracts/{contractId}/milestones/{position}/votes", h.GetMilestoneVotesHandler)
			r.Post("/contracts/{contractId}/milestones/{position}/finalize", h.FinalizeMilestoneHandler)
			r.Post("/contracts/{contractId}/milestones/{position}/release-fund", h.ReleaseFundHandler)
		})
	})

	serverAddr := os.Getenv("SERVER_ADDRESS")
	if serverAddr == "" {
		serverAddr = defaultServerAddress
	}

	if os.Getenv("SCHEDULER_DISABLED") != "true" {
		base := sweepBaseURL(serverAddr)
		go runSweeper(base+"/api/bid-evaluate", bidEvaluateInterval)
		go runSweeper(base+"/api/public-voting-close", votingCloseInterval)
	}

	log.Printf("Starting server on %s", serverAddr)
	log.Fatal(http.ListenAndServe(serverAddr, r))
}

// sweepBaseURL строит адрес для self-запросов планировщика. Bind-адрес
// может быть невызываемым (0.0.0.0, ::), тогда подставляется loopback;
// SELF_URL переопределяет всё.
func sweepBaseURL(serverAddr string) string {
	if base := os.Getenv("SELF_URL"); base != "" {
		return strings.TrimSuffix(base, "/")
	}
	host, port, err := net.SplitHostPort(serverAddr)
	if err != nil {
		return "http://" + serverAddr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// runSweeper периодически дергает сервисный маршрут.
func runSweeper(url string, interval time.Duration) {
	client := &http.Client{Timeout: sweepRequestTimeout}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		resp, err := client.Post(url, "application/json", nil)
		if err != nil {
			log.Printf("Sweep %s failed: %v", url, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			log.Printf("Sweep %s returned %s", url, resp.Status)
		}
	}
}
