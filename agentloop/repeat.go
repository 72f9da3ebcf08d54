package agentloop

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// callSignature computes a deterministic signature for a tool call
// (name + hash of arguments).
func callSignature(call ToolCall) string {
	h := sha256.Sum256([]byte(strings.Join(call.Args, "\x00")))
	return fmt.Sprintf("%s:%x", call.Name, h[:8])
}

// recentCallSignatures extracts signatures from the most recent tool calls
// in the conversation, in chronological order.
func recentCallSignatures(history []Message, count int) []string {
	var sigs []string
	for i := len(history) - 1; i >= 0 && len(sigs) < count; i-- {
		msg := history[i]
		if msg.Role != RoleAssistant {
			continue
		}
		for j := len(msg.ToolCalls) - 1; j >= 0 && len(sigs) < count; j-- {
			sigs = append(sigs, callSignature(msg.ToolCalls[j]))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectRepeatedCalls checks if the last windowSize tool calls follow a
// repeating pattern of length 1, 2, or 3.
func DetectRepeatedCalls(history []Message, windowSize int) bool {
	sigs := recentCallSignatures(history, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
			if !allMatch {
				break
			}
		}
		if allMatch {
			return true
		}
	}

	return false
}
