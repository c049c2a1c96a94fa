package orchestrator

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind tags the variants of Command. Downstream components switch on the
// kind and never inspect command text.
type Kind int

const (
	KindRaw Kind = iota
	KindPlay
	KindPause
	KindSeek
	KindJump
	KindSleep
)

func (k Kind) String() string {
	switch k {
	case KindPlay:
		return "play"
	case KindPause:
		return "pause"
	case KindSeek:
		return "seek"
	case KindJump:
		return "jump"
	case KindSleep:
		return "sleep"
	default:
		return "raw"
	}
}

// AllInstances is the Target of a command broadcast to every instance.
const AllInstances = -1

// maxSleepSeconds is the longest sleep a time.Duration can represent.
const maxSleepSeconds = float64(math.MaxInt64 / int64(time.Second))

// batchSeparator separates tokens of a raw batch ("pause, sleep 2, play").
const batchSeparator = ","

// Command is a single directive parsed once at the dispatcher boundary.
type Command struct {
	Kind Kind
	// Text is the RC line sent to the player, without any target prefix.
	Text string
	// Timestamp is the seek position in seconds (KindSeek only).
	Timestamp int
	// Delay is the pause length (KindSleep only).
	Delay time.Duration
	// Target is AllInstances or the index of the only instance that
	// receives the command.
	Target int
}

// Seek returns the directive relayed to every instance after the master
// reports its clock.
func Seek(ts int) Command {
	return Command{
		Kind:      KindSeek,
		Text:      "seek " + strconv.Itoa(ts),
		Timestamp: ts,
		Target:    AllInstances,
	}
}

// Targeted reports whether the command is addressed to a single instance.
func (c Command) Targeted() bool {
	return c.Target != AllInstances
}

// ParseCommand parses one batch token. Unrecognized or malformed tokens
// become KindRaw and are forwarded verbatim.
//
// A token of the form "@N <command>" targets instance N only.
func ParseCommand(token string) Command {
	text := strings.TrimSpace(token)
	target := AllInstances

	if strings.HasPrefix(text, "@") {
		prefix, rest, found := strings.Cut(text[1:], " ")
		if n, err := strconv.Atoi(prefix); found && err == nil && n >= 0 {
			target = n
			text = strings.TrimSpace(rest)
		}
	}

	cmd := Command{Kind: KindRaw, Text: text, Target: target}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return cmd
	}

	switch strings.ToLower(fields[0]) {
	case "play":
		cmd.Kind = KindPlay
	case "pause":
		cmd.Kind = KindPause
	case "jump":
		cmd.Kind = KindJump
	case "seek":
		if len(fields) != 2 {
			break
		}
		if ts, err := strconv.Atoi(fields[1]); err == nil {
			cmd.Kind = KindSeek
			cmd.Timestamp = ts
		}
	case "sleep":
		if len(fields) != 2 {
			break
		}
		secs, err := strconv.ParseFloat(fields[1], 64)
		// Also rejects NaN, Inf and delays a Duration cannot hold.
		if err != nil || !(secs >= 0 && secs <= maxSleepSeconds) {
			break
		}
		cmd.Kind = KindSleep
		cmd.Delay = time.Duration(secs * float64(time.Second))
	}

	return cmd
}

// ParseBatch splits a raw comma separated batch into commands, skipping
// empty tokens.
func ParseBatch(raw string) []Command {
	tokens := strings.Split(raw, batchSeparator)
	out := make([]Command, 0, len(tokens))
	for _, tok := range tokens {
		if strings.TrimSpace(tok) == "" {
			continue
		}
		out = append(out, ParseCommand(tok))
	}
	return out
}

// SplitBatch applies the deferral rule to a raw batch received at now.
//
// Untargeted "sleep K" tokens are consumed: the next non-sleep command is
// due at now plus the sum of the sleeps seen since the previous non-sleep
// command. Commands not preceded by a sleep are immediate. Sleeps with no
// following command are discarded.
func SplitBatch(raw string, now time.Time) (immediate []Command, deferred []DeferredEntry) {
	var offset time.Duration
	for _, cmd := range ParseBatch(raw) {
		if cmd.Kind == KindSleep && !cmd.Targeted() {
			offset += cmd.Delay
			continue
		}
		if offset > 0 {
			deferred = append(deferred, DeferredEntry{Due: now.Add(offset), Command: cmd})
			offset = 0
			continue
		}
		immediate = append(immediate, cmd)
	}
	return immediate, deferred
}
