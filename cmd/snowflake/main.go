// Snowflake CLI - command-line tool for generating and inspecting
// fluxid Snowflake IDs.
//
// Usage:
//
//	snowflake generate [flags]       Generate Snowflake IDs
//	snowflake parse <id>             Parse and inspect an ID
//	snowflake encode <id> <format>   Convert ID to a different format
//	snowflake validate <id>          Validate an ID structure
//	snowflake bench                  Run generation/encoding benchmarks
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arjunmehta/fluxid"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "generate", "gen", "g":
		cmdGenerate(os.Args[2:])
	case "parse", "p":
		cmdParse(os.Args[2:])
	case "encode", "enc", "e":
		cmdEncode(os.Args[2:])
	case "validate", "val", "v":
		cmdValidate(os.Args[2:])
	case "bench", "benchmark", "b":
		cmdBench(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("snowflake CLI version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Snowflake CLI - fluxid Snowflake ID generator

Usage:
  snowflake <command> [flags]

Commands:
  generate, gen, g      Generate Snowflake IDs
  parse, p              Parse and inspect an ID
  encode, enc, e        Convert ID between formats
  validate, val, v      Validate an ID structure
  bench, b              Run performance benchmarks
  version               Show version information
  help                  Show this help message

Examples:
  snowflake generate --machine 42
  snowflake generate --count 10 --format hex --machine 42
  snowflake parse 7ZZZZZZZZZZZZ
  snowflake encode 1234567890123456789 hex
  snowflake validate 7ZZZZZZZZZZZZ
  snowflake bench --duration 5s

For detailed help on a command:
  snowflake <command> --help

`)
}

var layout = fluxid.LayoutDefault

func newGenerator(machineID uint64) *fluxid.LockSnowflakeGenerator {
	clock := fluxid.NewMonotonicClock(time.Unix(0, 0))
	return fluxid.NewLockSnowflakeGenerator(layout, machineID, clock, 0)
}

// ============================================================================
// Generate Command
// ============================================================================

func cmdGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	count := fs.Int("count", 1, "Number of IDs to generate")
	machineID := fs.Uint64("machine", 0, "Machine ID (0-1023 under the default layout)")
	format := fs.String("format", "base32", "Output format: base32, decimal, hex")
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: snowflake generate [flags]

Generate one or more Snowflake IDs.

Flags:
  --count N          Number of IDs to generate (default: 1)
  --machine N        Machine ID, 0-1023 under the default layout (default: 0)
  --format FORMAT    Output format: base32, decimal, hex (default: base32)
  --json             Output as JSON with full details

Examples:
  snowflake generate --machine 42
  snowflake generate --count 1000 --format hex --machine 42
  snowflake generate --json --machine 5
`)
	}
	fs.Parse(args)

	gen := newGenerator(*machineID)
	ids := make([]fluxid.SnowflakeID, *count)
	start := time.Now()
	for i := range ids {
		ids[i] = gen.NextID(func(yieldFor int64) {
			time.Sleep(time.Duration(yieldFor) * time.Millisecond)
		})
	}
	duration := time.Since(start)

	if *jsonOutput {
		outputJSON(ids, duration, *machineID)
		return
	}
	for _, id := range ids {
		fmt.Println(formatID(id, *format))
	}
	if *count > 100 {
		rate := float64(*count) / duration.Seconds()
		fmt.Fprintf(os.Stderr, "\nGenerated %d IDs in %v (%.0f IDs/sec)\n", *count, duration, rate)
	}
}

func formatID(id fluxid.SnowflakeID, format string) string {
	switch strings.ToLower(format) {
	case "decimal", "dec", "d":
		return strconv.FormatUint(id.ToRaw(), 10)
	case "hex", "x":
		return strconv.FormatUint(id.ToRaw(), 16)
	default:
		return id.String()
	}
}

func outputJSON(ids []fluxid.SnowflakeID, duration time.Duration, machineID uint64) {
	type IDInfo struct {
		Base32    string    `json:"base32"`
		Decimal   string    `json:"decimal"`
		Hex       string    `json:"hex"`
		Timestamp time.Time `json:"timestamp"`
		MachineID uint64    `json:"machine_id"`
		Sequence  uint64    `json:"sequence"`
	}
	type Output struct {
		Count      int      `json:"count"`
		MachineID  uint64   `json:"machine_id"`
		Duration   string   `json:"duration"`
		RatePerSec float64  `json:"rate_per_sec"`
		IDs        []IDInfo `json:"ids"`
	}

	infos := make([]IDInfo, len(ids))
	for i, id := range ids {
		infos[i] = IDInfo{
			Base32:    id.String(),
			Decimal:   strconv.FormatUint(id.ToRaw(), 10),
			Hex:       strconv.FormatUint(id.ToRaw(), 16),
			Timestamp: time.UnixMilli(int64(id.Timestamp())),
			MachineID: id.MachineID(),
			Sequence:  id.Sequence(),
		}
	}

	rate := float64(len(ids)) / duration.Seconds()
	out := Output{
		Count:      len(ids),
		MachineID:  machineID,
		Duration:   duration.String(),
		RatePerSec: rate,
		IDs:        infos,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}

// ============================================================================
// Parse Command
// ============================================================================

func cmdParse(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: snowflake parse <id>\n")
		fmt.Fprintf(os.Stderr, "\nParse and inspect a Snowflake ID.\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  snowflake parse 7ZZZZZZZZZZZZ   # Base32 form\n")
		fmt.Fprintf(os.Stderr, "  snowflake parse 1234567890123456789\n")
		os.Exit(1)
	}

	id, err := parseIDFlexible(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: unable to parse ID %q: %v\n", args[0], err)
		os.Exit(1)
	}

	timestamp := time.UnixMilli(int64(id.Timestamp()))
	fmt.Printf("Snowflake ID: %s\n", id)
	fmt.Printf("\nComponents:\n")
	fmt.Printf("  Timestamp:  %s (%d ms since epoch)\n", timestamp.Format(time.RFC3339), id.Timestamp())
	fmt.Printf("  Machine ID: %d\n", id.MachineID())
	fmt.Printf("  Sequence:   %d\n", id.Sequence())
	fmt.Printf("\nEncodings:\n")
	fmt.Printf("  Base32:     %s\n", id.String())
	fmt.Printf("  Decimal:    %s\n", strconv.FormatUint(id.ToRaw(), 10))
	fmt.Printf("  Hex:        %s\n", strconv.FormatUint(id.ToRaw(), 16))
	fmt.Printf("\nValid:        %v\n", id.IsValid())
}

// ============================================================================
// Encode Command
// ============================================================================

func cmdEncode(args []string) {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: snowflake encode <id> <format>\n")
		fmt.Fprintf(os.Stderr, "\nConvert a Snowflake ID to a different encoding format.\n")
		fmt.Fprintf(os.Stderr, "\nFormats:\n")
		fmt.Fprintf(os.Stderr, "  base32, b32        Crockford Base32 (default string form)\n")
		fmt.Fprintf(os.Stderr, "  decimal, dec       Decimal string\n")
		fmt.Fprintf(os.Stderr, "  hex, x             Hexadecimal\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  snowflake encode 1234567890123456789 hex\n")
		fmt.Fprintf(os.Stderr, "  snowflake encode 7ZZZZZZZZZZZZ decimal\n")
		os.Exit(1)
	}

	id, err := parseIDFlexible(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: unable to parse ID %q: %v\n", args[0], err)
		os.Exit(1)
	}
	fmt.Println(formatID(id, args[1]))
}

// parseIDFlexible tries, in order, Base32, decimal, and hex. Base32 is
// tried first since it is the only encoding of these three whose length
// unambiguously identifies it for the default 64-bit layout.
func parseIDFlexible(s string) (fluxid.SnowflakeID, error) {
	if raw, err := fluxid.DecodeLayoutID(layout, s); err == nil {
		return fluxid.SnowflakeIDFromRaw(layout, raw), nil
	}
	if raw, err := strconv.ParseUint(s, 10, 64); err == nil {
		return fluxid.SnowflakeIDFromRaw(layout, raw), nil
	}
	raw, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return fluxid.SnowflakeID{}, fmt.Errorf("not a valid base32, decimal, or hex id")
	}
	return fluxid.SnowflakeIDFromRaw(layout, raw), nil
}

// ============================================================================
// Validate Command
// ============================================================================

func cmdValidate(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: snowflake validate <id>\n")
		fmt.Fprintf(os.Stderr, "\nValidate the structure of a Snowflake ID.\n")
		os.Exit(1)
	}

	id, err := parseIDFlexible(args[0])
	if err != nil {
		fmt.Printf("INVALID: unable to parse ID %q\n", args[0])
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if !id.IsValid() {
		fmt.Printf("INVALID: reserved bits are set\n")
		fmt.Printf("\nComponents:\n")
		fmt.Printf("  Timestamp:  %d ms since epoch\n", id.Timestamp())
		fmt.Printf("  Machine ID: %d\n", id.MachineID())
		fmt.Printf("  Sequence:   %d\n", id.Sequence())
		os.Exit(1)
	}

	fmt.Printf("VALID: ID structure is valid\n")
	fmt.Printf("\nComponents:\n")
	fmt.Printf("  Timestamp:  %s\n", time.UnixMilli(int64(id.Timestamp())).Format(time.RFC3339))
	fmt.Printf("  Machine ID: %d\n", id.MachineID())
	fmt.Printf("  Sequence:   %d\n", id.Sequence())
}

// ============================================================================
// Benchmark Command
// ============================================================================

func cmdBench(args []string) {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	duration := fs.Duration("duration", 3*time.Second, "Benchmark duration")
	machineID := fs.Uint64("machine", 0, "Machine ID (0-1023 under the default layout)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: snowflake bench [flags]

Run performance benchmarks for ID generation and encoding.

Flags:
  --duration D      Benchmark duration (default: 3s)
  --machine N       Machine ID, 0-1023 (default: 0)
`)
	}
	fs.Parse(args)

	gen := newGenerator(*machineID)
	fmt.Printf("Running benchmarks (duration: %v, machine: %d)\n\n", *duration, *machineID)

	fmt.Printf("1. ID Generation:\n")
	count := 0
	start := time.Now()
	deadline := start.Add(*duration)
	for time.Now().Before(deadline) {
		gen.NextID(func(yieldFor int64) { time.Sleep(time.Duration(yieldFor) * time.Millisecond) })
		count++
	}
	elapsed := time.Since(start)
	rate := float64(count) / elapsed.Seconds()
	fmt.Printf("   Generated:   %d IDs\n", count)
	fmt.Printf("   Duration:    %v\n", elapsed)
	fmt.Printf("   Rate:        %.0f IDs/sec (%.0f ns/op)\n\n", rate, float64(elapsed.Nanoseconds())/float64(count))

	fmt.Printf("2. Encoding Performance (1000 operations):\n")
	testID := gen.NextID(func(yieldFor int64) { time.Sleep(time.Duration(yieldFor) * time.Millisecond) })
	encodingTests := []struct {
		name string
		fn   func() string
	}{
		{"Base32", func() string { return testID.String() }},
		{"Decimal", func() string { return strconv.FormatUint(testID.ToRaw(), 10) }},
		{"Hex", func() string { return strconv.FormatUint(testID.ToRaw(), 16) }},
	}
	for _, test := range encodingTests {
		start := time.Now()
		for i := 0; i < 1000; i++ {
			_ = test.fn()
		}
		elapsed := time.Since(start)
		fmt.Printf("   %-8s %6.0f ns/op\n", test.name+":", float64(elapsed.Nanoseconds())/1000)
	}
	fmt.Printf("\nBenchmark complete!\n")
}
