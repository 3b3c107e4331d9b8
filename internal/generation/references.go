package generation

import (
	"regexp"
	"strings"

	"github.com/pmprep/backend/internal/storage/models"
)

// Reference is one resolved citation from an answer's References section.
// URL and Channel stay empty when no corpus video matched; the client renders
// those as plain text instead of links.
type Reference struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Channel string `json:"channel,omitempty"`
}

type ResolvedAnswer struct {
	Body       string      `json:"body"`
	References []Reference `json:"references"`
}

var (
	referencesMarker = regexp.MustCompile(`(?i)^\s*references\s*:?\s*$`)
	listMarker       = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)
	nonAlnum         = regexp.MustCompile(`[^a-z0-9 ]+`)
	multiSpace       = regexp.MustCompile(`\s+`)
)

const fuzzyPrefixLen = 30

// ResolveReferences splits answerText at its References marker and matches
// each cited title back to the corpus videos. Matching is best-effort and
// tiered: normalized exact match first, then a fuzzy prefix-containment
// fallback, then an unlinked reference. Pure and deterministic.
func ResolveReferences(answerText string, corpusVideos []models.SourceVideo) ResolvedAnswer {
	body, refLines := splitReferences(answerText)

	references := []Reference{}
	for _, line := range refLines {
		title, channel := parseReferenceLine(line)
		if title == "" {
			continue
		}

		if video, ok := matchVideo(title, corpusVideos); ok {
			references = append(references, Reference{
				Title:   video.Title,
				URL:     video.URL,
				Channel: video.Channel,
			})
			continue
		}

		references = append(references, Reference{Title: title, Channel: channel})
	}

	return ResolvedAnswer{Body: body, References: references}
}

func splitReferences(answerText string) (string, []string) {
	lines := strings.Split(answerText, "\n")
	for i, line := range lines {
		if referencesMarker.MatchString(line) {
			body := strings.TrimRight(strings.Join(lines[:i], "\n"), " \t\n")
			refLines := []string{}
			for _, ref := range lines[i+1:] {
				if strings.TrimSpace(ref) != "" {
					refLines = append(refLines, ref)
				}
			}
			return body, refLines
		}
	}
	return strings.TrimRight(answerText, " \t\n"), nil
}

// parseReferenceLine strips list markers and quoting and splits an optional
// "<title> by <channel>" suffix.
func parseReferenceLine(line string) (string, string) {
	line = listMarker.ReplaceAllString(line, "")
	line = strings.TrimSpace(line)
	line = strings.TrimSuffix(line, ".")

	title := line
	channel := ""
	if idx := strings.LastIndex(line, " by "); idx > 0 {
		title = line[:idx]
		channel = strings.TrimSpace(line[idx+len(" by "):])
	}

	title = trimQuotes(strings.TrimSpace(title))
	channel = trimQuotes(channel)
	return title, channel
}

func trimQuotes(s string) string {
	return strings.Trim(s, `"'`+"“”‘’")
}

func matchVideo(title string, corpusVideos []models.SourceVideo) (models.SourceVideo, bool) {
	normTitle := normalizeTitle(title)
	if normTitle == "" {
		return models.SourceVideo{}, false
	}

	for _, video := range corpusVideos {
		if normalizeTitle(video.Title) == normTitle {
			return video, true
		}
	}

	prefix := normTitle
	if len(prefix) > fuzzyPrefixLen {
		prefix = prefix[:fuzzyPrefixLen]
	}
	for _, video := range corpusVideos {
		normVideo := normalizeTitle(video.Title)
		if normVideo == "" {
			continue
		}
		videoPrefix := normVideo
		if len(videoPrefix) > fuzzyPrefixLen {
			videoPrefix = videoPrefix[:fuzzyPrefixLen]
		}
		if strings.Contains(normVideo, prefix) || strings.Contains(normTitle, videoPrefix) {
			return video, true
		}
	}

	return models.SourceVideo{}, false
}

func normalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
