package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"

	"github.com/slmsuite/hardware/alliedvision"
	"github.com/slmsuite/hardware/basler"
	"github.com/slmsuite/hardware/fullscreen"
	"github.com/slmsuite/hardware/thorlabs"
	"github.com/slmsuite/hardware/util"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "slmsrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:  ":8000",
		Nodes: []ObjSetup{}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `slmsrv drives spatial light modulators and cameras and exposes an HTTP interface to them
This enables a server-client architecture, and the clients can leverage the
excellent HTTP libraries for any programming language.

Usage:
	slmsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version
	screens
	devices`
	fmt.Println(str)
}

func help() {
	str := `slmsrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Without a configuration, the server will close immediately and display an error
that there are no endpoints.

No two endpoints can have the same URL.

URLs may look like any variation between "omc/slm" or "/omc/slm/*", the leading
and trailing slashes, as well as the *, are added by the server if missing.

SLMs that present themselves as a monitor are drawn by a borderless window
covering the monitor numbered Screen in the output of "slmsrv screens".  Only
one such SLM is allowed per server.  With Output: framebuffer (linux only) the
SLM is drawn straight into /dev/fbN instead, and any number are allowed.

Resize controls images whose size differs from the SLM: reject (default),
stretch, or fit.

With Mock: true every device is simulated and nothing is drawn.

Hardware and matching "type" fields, case insensitive, alphabetical by vendor:
- Allied Vision
	> any Vimba camera "alliedvision", "vimba"
- Basler
	> any pylon camera "basler", "pylon"
- Thorlabs
	> EXULUS SLMs "exulus", "thorlabs-exulus"
- Generic
	> an SLM plugged in as a monitor "screen-slm", "fullscreen-slm"
	> an SLM on a linux framebuffer "framebuffer-slm"
	> a simulated camera "mock-camera"

Camera SDKs are not linked by default, a build must register them with
alliedvision.Register or basler.Register.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("slmsrv version %v\n", Version)
}

func screens() {
	surfs, err := fullscreen.Monitors{}.Surfaces()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("monitors:")
	for _, s := range surfs {
		fmt.Println("\t", s)
	}
	c := Config{}
	k.Unmarshal("", &c)
	enum, _, err := framebufferOutput(c.FramebufferDir)
	if err != nil {
		return
	}
	fbs, err := enum.Surfaces()
	if err != nil {
		log.Println(err)
		return
	}
	fmt.Println("framebuffers:")
	for _, s := range fbs {
		fmt.Println("\t", s)
	}
}

func devices() {
	exs, err := thorlabs.ListEXULUS()
	if err != nil {
		log.Println("listing EXULUS SLMs:", err)
	}
	fmt.Println("EXULUS SLMs:")
	printJSON(os.Stdout, exs)

	if !alliedvision.Available() {
		fmt.Println("Allied Vision: no Vimba binding in this build")
	} else if av, err := alliedvision.Info(); err != nil {
		log.Println("listing Allied Vision cameras:", err)
	} else {
		fmt.Println("Allied Vision cameras:")
		printJSON(os.Stdout, util.UniqueString(av))
	}

	if !basler.Available() {
		fmt.Println("Basler: no pylon binding in this build")
	} else if bas, err := basler.Info(); err != nil {
		log.Println("listing Basler cameras:", err)
	} else {
		fmt.Println("Basler cameras:")
		printJSON(os.Stdout, bas)
	}
}

func newSpinner(msg string) *yacspin.Spinner {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[11],
		Suffix:            " ",
		Message:           msg,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		// the spinner is cosmetic
		log.Println(err)
		return nil
	}
	return spinner
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	if len(c.Nodes) == 0 {
		log.Fatal("no endpoints configured, see slmsrv help")
	}

	spinner := newSpinner(fmt.Sprintf("opening %d devices", len(c.Nodes)))
	if spinner != nil {
		spinner.Start()
	}
	srv, err := Build(c)
	if spinner != nil {
		if err != nil {
			spinner.StopFailMessage(err.Error())
			spinner.StopFail()
		} else {
			spinner.Stop()
		}
	}
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	hs := &http.Server{Addr: c.Addr, Handler: srv.Mux}
	go func() {
		<-ctx.Done()
		hs.Close()
	}()

	log.Println("now listening for requests at ", c.Addr)
	if srv.Window == nil {
		err = hs.ListenAndServe()
	} else {
		// the window owns the main goroutine, closing it stops the server
		// and stopping the server closes it
		go func() {
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				log.Println(err)
			}
			srv.Window.Close()
		}()
		err = srv.Window.Run()
		hs.Close()
	}
	if cerr := srv.Close(); cerr != nil {
		log.Println(cerr)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	case "screens":
		screens()
		return
	case "devices":
		devices()
		return
	default:
		log.Fatal("unknown command")
	}
}
