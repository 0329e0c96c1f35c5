// Command armsim is an interactive debug front end for the simulator: a
// menu-driven REPL modeled on the console BIOS loop this project started
// from, adapted to register/flag/memory watchpoints and single-stepping
// instead of a PPU frame loop.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/wbmoore/armsim/config"
	"github.com/wbmoore/armsim/register"
	"github.com/wbmoore/armsim/sim"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: armsim <session.toml>")
		os.Exit(1)
	}

	sess, err := config.Load(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "armsim: %v\n", err)
		os.Exit(1)
	}

	s, err := sim.New(sess.Image)
	if err != nil {
		fmt.Fprintf(os.Stderr, "armsim: %v\n", err)
		os.Exit(1)
	}
	s.Reset()

	for id, val := range sess.Registers {
		s.Registers.Set(id, val, false)
	}
	for _, bp := range sess.Breakpoints {
		if bp.Register != "" {
			id, err := registerIDForDisplay(bp.Register)
			if err == nil {
				s.Registers.SetBreakpoint(id, bp.Mask)
			}
		} else if bp.Address != nil {
			s.Memory.SetBreakpoint(*bp.Address, bp.Mask)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigQuit := make(chan os.Signal, 1)
	signal.Notify(sigQuit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigQuit
		cancel()
	}()

	restore, raw := rawMode()
	defer restore()

	repl(ctx, s, raw)
}

// rawMode puts stdin into raw mode when it is an interactive terminal, so
// the REPL's single-letter commands take effect immediately rather than
// after Enter. It returns a no-op restore and ok=false when stdin isn't a
// terminal (e.g. under CI or when piped), in which case the REPL falls
// back to line-buffered reads.
func rawMode() (restore func(), ok bool) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, false
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}, false
	}
	return func() { term.Restore(fd, old) }, true
}

func repl(ctx context.Context, s *sim.Simulator, raw bool) {
	in := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("\r\nPC=%#08x  %s  cycle=%d  state=%s\r\n", s.Registers.Get(register.PC, false), s.Flags, s.CountCycle, s.State)
		fmt.Print("(B)reak register   (C)lear breakpoints   (R)un to completion\r\n")
		fmt.Print("(S)tep instruction  (e) reset            (M)emory dump\r\n")
		fmt.Print("s(t)ep over call    (I)nstruction fetch   (Q)uit\r\n")
		fmt.Print("Choice: ")

		choice, err := readChoice(in, raw)
		if err != nil {
			return
		}

		switch choice {
		case 'b', 'B':
			name := readLine("Register to watch (e.g. r3, sp, pc): ")
			id, err := registerIDForDisplay(name)
			if err != nil {
				fmt.Println(err)
				continue
			}
			s.Registers.SetBreakpoint(id, register.MaskRead|register.MaskWrite)
		case 'c', 'C':
			for id := 0; id < register.Count; id++ {
				s.Registers.RemoveBreakpoint(id)
			}
		case 'e':
			s.Reset()
		case 'q', 'Q':
			return
		case 'r', 'R':
			runToCompletion(ctx, s)
		case 's', 'S':
			s.NextInstr()
		case 't':
			s.SetStepCondition(sim.StepForward)
			for {
				s.NextInstr()
				if s.IsStepDone() {
					break
				}
			}
		case 'i', 'I':
			word, ok := s.FetchedWord()
			if !ok {
				fmt.Println("no fetched instruction")
				continue
			}
			fmt.Printf("fetched word: %#08x\n", word)
		case 'm', 'M':
			dumpMemory(s)
		}

		if s.Bus.Triggered() {
			ev := s.Bus.Event()
			fmt.Printf("breakpoint: src=%s mode=%s info=%v\n", ev.Src, ev.Mode, ev.Info)
		}
	}
}

func runToCompletion(ctx context.Context, s *sim.Simulator) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.NextInstr()
		if s.Bus.Triggered() {
			return
		}
	}
}

func dumpMemory(s *sim.Simulator) {
	img := s.Memory.Serialize()
	const perLine = 16
	for addr := 0; addr < len(img); addr += perLine {
		end := addr + perLine
		if end > len(img) {
			end = len(img)
		}
		fmt.Printf("%#06x: % x\n", addr, img[addr:end])
	}
}

func registerIDForDisplay(name string) (int, error) {
	switch name {
	case "sp", "SP":
		return register.SP, nil
	case "lr", "LR":
		return register.LR, nil
	case "pc", "PC":
		return register.PC, nil
	}
	var id int
	if n, err := fmt.Sscanf(name, "r%d", &id); err != nil || n != 1 {
		if n, err := fmt.Sscanf(name, "R%d", &id); err != nil || n != 1 {
			return 0, fmt.Errorf("unrecognised register %q", name)
		}
	}
	if id < 0 || id >= register.Count {
		return 0, fmt.Errorf("register %q out of range", name)
	}
	return id, nil
}

func readLine(prompt string) string {
	fmt.Print(prompt)
	var s string
	fmt.Scanln(&s)
	return s
}

// readChoice reads one menu-command letter. In raw mode it reads a single
// byte with no newline required; otherwise it falls back to a
// newline-terminated read, matching how the command works when stdin is
// piped (e.g. in tests or CI).
func readChoice(in *bufio.Reader, raw bool) (rune, error) {
	if raw {
		b, err := in.ReadByte()
		if err != nil {
			return 0, err
		}
		fmt.Printf("%c\r\n", b)
		return rune(b), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return 0, err
	}
	for _, r := range line {
		if r != '\n' && r != '\r' {
			return r, nil
		}
	}
	return 0, nil
}
