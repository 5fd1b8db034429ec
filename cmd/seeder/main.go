package main

import (
	"archive/zip"
	"bufio"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strings"
)

var questions = []string{
	"How do you decide what to work on first when everything feels urgent?",
	"What should I do when a code review turns into an argument?",
	"How did you learn to estimate projects?",
	"When is it right to push back on a deadline?",
	"How do I get better at running one-on-ones?",
	"What do you look for when hiring a senior engineer?",
	"How do you handle an incident when you are the most senior person online?",
	"How should I prepare for a promotion conversation?",
	"What is the best way to onboard onto a large legacy codebase?",
	"How do you keep a team motivated through a long migration?",
	"When should I rewrite instead of refactor?",
	"How do you give feedback that actually lands?",
}

var answers = []string{
	"I write down the three things that would hurt most if they slipped and I start with the one nobody else can do.",
	"Move the discussion to a call after two rounds of comments; text strips the tone out of disagreement.",
	"Estimate in ranges, and track how far off you were so the next range gets narrower.",
	"Push back early with options, never late with excuses. Offer what you can ship by the date and what you cannot.",
	"Let the report own the agenda. Your job is to ask the second question, not to fill the silence.",
	"I look for people who can explain a tradeoff they got wrong and what they changed afterwards.",
	"Name an incident lead out loud, even if it is you, and write a timeline as you go.",
	"Bring evidence of scope, not effort. Show the problems you owned end to end.",
	"Read the deploy scripts and the oldest tests first; they tell you what the system is afraid of.",
	"Celebrate each cut-over milestone and publish the burndown so progress is visible.",
	"Rewrite only when the cost of a change is dominated by understanding the old code rather than writing the new.",
	"Be specific about the behavior, its impact, and what you would like to see next time.",
	"My first manager told me to always leave a system a little more observable than I found it.",
	"Protect two mornings a week for deep work and guard them like production.",
	"Write the rollback plan before the migration starts, and rehearse it once.",
	"Pair with new hires on their first on-call shift so they learn the runbooks with a safety net.",
}

var (
	seedFileName = flag.String("src", "", "file of seed answers, one per line")
	outFileName  = flag.String("out", "transcripts.zip", "zip archive to write")
	fileCount    = flag.Int("files", 5, "number of transcripts")
	turns        = flag.Int("turns", 8, "question and answer turns per transcript")
	duplicate    = flag.Bool("duplicate", true, "add a byte-identical copy of the first transcript")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// linesFromFile returns an iterator over the non-blank lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}, nil
}

// cycle repeats lines forever.
func cycle(lines []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if len(lines) == 0 {
			return
		}
		for i := 0; ; i++ {
			if !yield(lines[i%len(lines)]) {
				return
			}
		}
	}
}

// transcript renders one mentoring session alternating mentee questions
// with mentor answers pulled from next.
func transcript(session int, turnCount int, next func() (string, bool)) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Mentoring session %d\n\n", session+1)
	for t := 0; t < turnCount; t++ {
		answer, ok := next()
		if !ok {
			break
		}
		fmt.Fprintf(&sb, "Mentee: %s\n", questions[(session+t)%len(questions)])
		fmt.Fprintf(&sb, "Mentor: %s\n\n", answer)
	}
	return sb.String()
}

func writeArchive(path string, source iter.Seq[string]) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	next, stop := iter.Pull(source)
	defer stop()

	zw := zip.NewWriter(out)
	var first string
	for i := 0; i < *fileCount; i++ {
		body := transcript(i, *turns, next)
		if i == 0 {
			first = body
		}
		name := fmt.Sprintf("sessions/session-%02d.txt", i+1)
		if err := addFile(zw, name, body); err != nil {
			return err
		}
		slog.Info("wrote transcript", "name", name, "bytes", len(body))
	}
	if *duplicate && first != "" {
		if err := addFile(zw, "sessions/session-01-copy.txt", first); err != nil {
			return err
		}
	}
	// Archive tool metadata that ingestion ignores.
	if err := addFile(zw, "__MACOSX/sessions/._session-01.txt", "resource fork"); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return out.Close()
}

func addFile(zw *zip.Writer, name, body string) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write([]byte(body))
	return err
}

func main() {
	var source iter.Seq[string]
	if *seedFileName != "" {
		lines, err := linesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
		var all []string
		for line := range lines {
			all = append(all, line)
		}
		source = cycle(all)
	} else {
		source = cycle(answers)
	}

	if err := writeArchive(*outFileName, source); err != nil {
		panic(err)
	}
	slog.Info("archive ready", "path", *outFileName)
}
