package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"marketfeed-go/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== Market Feed Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit feed connection")
		fmt.Println("3) Edit signal feed")
		fmt.Println("4) Edit risk and paper trading")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch feed daemon")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editFeed(reader, cfg)
		case "3":
			editSignals(reader, cfg)
		case "4":
			editRisk(reader, cfg)
		case "5":
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "config invalid, not saved:\n%v\n", err)
			} else if err := config.Save(*configPath, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launchDaemon(reader, *configPath)
		case "7":
			reloaded, err := loadConfig(*configPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Mode: %s (effective %s)\n", cfg.Feed.Mode, cfg.Feed.ResolveMode())
	fmt.Printf("URL: %s\n", cfg.Feed.URL)
	fmt.Println("Symbols:", strings.Join(cfg.Feed.Symbols, ", "))
	fmt.Printf("Reconnect: %d attempts, base delay %s\n", cfg.Feed.ReconnectAttempts(), cfg.Feed.ReconnectDelay())
	fmt.Printf("Tick interval: %s\n", cfg.Feed.TickInterval())
	fmt.Printf("Signals: every %s, capacity %d/%d, premium %v, paused %v\n",
		cfg.Signals.Interval(), cfg.Signals.MaxStandard, cfg.Signals.MaxPremium, cfg.Signals.Premium, cfg.Signals.Paused)
	fmt.Printf("Per-trade notional cap: $%.2f | max qty %.2f\n", cfg.Risk.MaxNotionalPerTrade, cfg.Risk.MaxOrderQty)
	fmt.Printf("Starting cash: $%.2f | per-symbol cap %.2f\n", cfg.Paper.StartingCash, cfg.Paper.MaxPositionPerSymbol)
	fmt.Printf("Follow signals: %v (min confidence %d, qty %.2f)\n", cfg.Trading.FollowSignals, cfg.Trading.MinConfidence, cfg.Trading.OrderQty)
	fmt.Println("Published events:", strings.Join(cfg.Publish.Events, ", "))
}

func editFeed(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Feed ---")
	cfg.Feed.Mode = promptString(reader, "Mode (simulated/live)", cfg.Feed.Mode)
	cfg.Feed.URL = promptString(reader, "Websocket URL", cfg.Feed.URL)
	cfg.Feed.Symbols = promptList(reader, "Symbols", cfg.Feed.Symbols)
	cfg.Feed.MaxReconnectAttempts = promptInt(reader, "Max reconnect attempts (-1 disables)", cfg.Feed.MaxReconnectAttempts)
	cfg.Feed.BaseReconnectDelayMs = promptInt(reader, "Base reconnect delay (ms)", cfg.Feed.BaseReconnectDelayMs)
	cfg.Feed.TickIntervalMs = promptInt(reader, "Tick interval (ms)", cfg.Feed.TickIntervalMs)
}

func editSignals(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Signals ---")
	cfg.Signals.IntervalMs = promptInt(reader, "Signal interval (ms)", cfg.Signals.IntervalMs)
	cfg.Signals.MaxStandard = promptInt(reader, "Standard capacity", cfg.Signals.MaxStandard)
	cfg.Signals.MaxPremium = promptInt(reader, "Premium capacity", cfg.Signals.MaxPremium)
	cfg.Signals.Premium = promptBool(reader, "Premium tier", cfg.Signals.Premium)
	cfg.Signals.Paused = promptBool(reader, "Start paused", cfg.Signals.Paused)
}

func editRisk(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Risk / Paper ---")
	cfg.Paper.StartingCash = promptFloat(reader, "Starting cash", cfg.Paper.StartingCash)
	cfg.Paper.MaxPositionPerSymbol = promptFloat(reader, "Max position per symbol", cfg.Paper.MaxPositionPerSymbol)
	cfg.Risk.MaxNotionalPerTrade = promptFloat(reader, "Max notional per trade (USD)", cfg.Risk.MaxNotionalPerTrade)
	cfg.Risk.MaxOrderQty = promptFloat(reader, "Max order qty", cfg.Risk.MaxOrderQty)
	cfg.Trading.FollowSignals = promptBool(reader, "Follow signals", cfg.Trading.FollowSignals)
	cfg.Trading.MinConfidence = promptInt(reader, "Min signal confidence", cfg.Trading.MinConfidence)
	cfg.Trading.OrderQty = promptFloat(reader, "Order qty", cfg.Trading.OrderQty)
}

func launchDaemon(reader *bufio.Reader, configPath string) {
	fmt.Println("Launching feed daemon (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/feedd", "-config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the daemon and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptString(reader *bufio.Reader, label, current string) string {
	fmt.Printf("%s [%s]: ", label, current)
	line, _ := reader.ReadString('\n')
	if line = strings.TrimSpace(line); line == "" {
		return current
	}
	return line
}

func promptList(reader *bufio.Reader, label string, current []string) []string {
	fmt.Printf("%s [%s] (comma-separated, blank to keep): ", label, strings.Join(current, ", "))
	line, _ := reader.ReadString('\n')
	if strings.TrimSpace(line) == "" {
		return current
	}
	var out []string
	for _, p := range strings.Split(line, ",") {
		if trimmed := strings.ToUpper(strings.TrimSpace(p)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func promptInt(reader *bufio.Reader, label string, current int) int {
	fmt.Printf("%s [%d]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.Atoi(line)
	if err != nil {
		fmt.Printf("invalid integer, keeping %d\n", current)
		return current
	}
	return val
}

func promptBool(reader *bufio.Reader, label string, current bool) bool {
	fmt.Printf("%s [%v]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseBool(line)
	if err != nil {
		fmt.Printf("invalid boolean, keeping %v\n", current)
		return current
	}
	return val
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Printf("%s not found, starting from defaults\n", path)
		return config.Default(), nil
	}
	return cfg, err
}
