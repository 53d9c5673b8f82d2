package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/park285/chessplay/internal/config"
	"github.com/park285/chessplay/internal/moveclient"
	"github.com/park285/chessplay/internal/rules"
)

func main() {
	strength := flag.Int("strength", 1200, "strength rating sent with the move request")
	flag.Parse()

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	client := moveclient.NewClient(cfg.BotServiceURL, moveclient.WithTimeout(cfg.RequestTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := client.Hello(ctx)
	if err != nil {
		log.Fatalf("/api/hello error: %v", err)
	}
	log.Printf("/api/hello ok: %s", msg)

	fen := rules.Standard{}.Start().FEN()
	started := time.Now()
	mctx, mcancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+time.Second)
	defer mcancel()
	mv, err := client.RequestMove(mctx, fen, *strength)
	if err != nil {
		log.Fatalf("/api/bot-move error: %v", err)
	}
	log.Printf("/api/bot-move ok: move=%s strength=%d elapsed=%s", mv, *strength, time.Since(started).Round(time.Millisecond))
}
