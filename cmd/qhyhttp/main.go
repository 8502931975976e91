package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nasa-jpl/qhylab/generichttp/camera"
	"github.com/nasa-jpl/qhylab/imgrec"
	"github.com/nasa-jpl/qhylab/notify"
	"github.com/nasa-jpl/qhylab/qhy"
	"github.com/nasa-jpl/qhylab/server"
	"github.com/nasa-jpl/qhylab/server/middleware/locker"
	"github.com/nasa-jpl/qhylab/usbscan"
	"github.com/nasa-jpl/qhylab/util"

	"github.com/cenkalti/backoff"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"goji.io"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "qhy-http.yml"
	k              = koanf.New(".")
)

type recorder struct {
	// Root is the root folder to write to
	Root string `yaml:"Root"`

	// Prefix is the filename prefix to use
	Prefix string `yaml:"Prefix"`
}

type mqttConf struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.  Empty disables MQTT.
	Broker string `yaml:"Broker"`

	// Topic is the root topic; events go to Topic/state and Topic/capture
	Topic string `yaml:"Topic"`

	ClientID string `yaml:"ClientID"`
}

type config struct {
	Addr          string                 `yaml:"Addr"`
	Root          string                 `yaml:"Root"`
	CameraIndex   int                    `yaml:"CameraIndex"`
	Simulate      bool                   `yaml:"Simulate"`
	ReadoutMargin float64                `yaml:"ReadoutMargin"`
	OpenRetries   int                    `yaml:"OpenRetries"`
	StreamMode    string                 `yaml:"StreamMode"`
	Cooling       bool                   `yaml:"Cooling"`
	Setpoint      float64                `yaml:"Setpoint"`
	Recorder      recorder               `yaml:"Recorder"`
	MQTT          mqttConf               `yaml:"MQTT"`
	BootupArgs    map[string]interface{} `yaml:"BootupArgs"`
}

func setupconfig() {
	k.Load(structs.Provider(config{
		Addr:          ":8000",
		Root:          "/",
		CameraIndex:   0,
		ReadoutMargin: qhy.DefaultReadoutMargin.Seconds(),
		OpenRetries:   5,
		StreamMode:    "single",
		Setpoint:      -10,
		Recorder:      recorder{},
		MQTT:          mqttConf{Topic: "qhy", ClientID: "qhy-http"},
		BootupArgs: map[string]interface{}{
			"exposure": 10000,
			"gain":     0,
			"offset":   10,
			"bits":     16,
			"speed":    "low",
		}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `qhy-http exposes control of QHY scientific cameras over HTTP
This enables a server-client architecture,
and the clients can leverage the excellent HTTP
libraries for any programming language,
instead of custom socket logic.

Usage:
	qhy-http <command>

Commands:
	run
	help
	mkconf
	conf
	version
	probe`
	fmt.Println(str)
}

func help() {
	str := `qhy-http is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are not case-sensitive.
The command mkconf generates the configuration file with the default values.
There is no need to do this unless you want to start from the prepopulated defaults when making
a config file.

BootupArgs are parameter names and values written after the camera is opened, for example
gain: 20 or speed: high.  Enum parameters take their key, the rest take numbers.
exposure is in microseconds.  If bootup fails, every rejected parameter is listed;
remove or correct them in the config.

CameraIndex selects among the cameras found by the SDK scan, in scan order.
The SDK uploads firmware on the first scan after the camera is plugged in,
so opening is retried OpenRetries times with an exponential backoff.

Simulate: true runs against an in-process camera with no hardware or SDK.

ReadoutMargin is the time in seconds allowed past the exposure time for a frame
to arrive.  A frame which is later than that faults the camera, which must be
restarted.

probe lists the QHY cameras on the USB bus without loading the SDK.

When MQTT.Broker is set, state changes and captures are published as JSON
to MQTT.Topic/state and MQTT.Topic/capture.

If the files and folders created do not have the permissions you want on linux,
your umask is likely to blame  qhy-http makes them with permission 666, but your
umask is probably the default of 0022 which knocks them down to 444.  Set your
umask to 0000 before running qhy-http to solve this.`
	fmt.Println(str)
}

func mkconf() {
	c := config{}
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
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	err = yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("qhy-http version %v\n", Version)
}

func probe() {
	devs, err := usbscan.Scan()
	if err != nil {
		log.Fatal(err)
	}
	if len(devs) == 0 {
		fmt.Println("no QHY cameras found")
		return
	}
	for _, d := range devs {
		fmt.Println(d)
	}
}

// open opens the camera, retrying while the SDK finds nothing to open.
// Anything else is not retried.
func open(cfg config, opts ...qhy.Option) (*qhy.Camera, error) {
	var lib qhy.Library
	if cfg.Simulate {
		lib = qhy.NewSimulator()
	} else {
		var err error
		lib, err = qhy.NewSDK()
		if err != nil {
			return nil, err
		}
	}

	var cam *qhy.Camera
	op := func() error {
		var err error
		cam, err = qhy.Open(lib, cfg.CameraIndex, opts...)
		if err == nil {
			return nil
		}
		if errors.Is(err, qhy.ErrNoDevice) || errors.Is(err, qhy.ErrOpenFailed) {
			return err
		}
		return backoff.Permanent(err)
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      time.Minute,
		Clock:               backoff.SystemClock}
	err := backoff.RetryNotify(op, backoff.WithMaxRetries(b, uint64(cfg.OpenRetries)), func(err error, d time.Duration) {
		log.Printf("%s, retrying in %s", err, d)
	})
	return cam, err
}

func run() {
	cfg := config{}
	k.Unmarshal("", &cfg)

	opts := []qhy.Option{
		qhy.WithLogger(log.New(os.Stderr, "qhy ", log.LstdFlags)),
		qhy.WithReadoutMargin(util.SecsToDuration(cfg.ReadoutMargin)),
		qhy.WithStreamMode(cfg.StreamMode),
	}
	var pub *notify.Publisher
	if cfg.MQTT.Broker != "" {
		var err error
		pub, err = notify.Dial(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			log.Fatal(pkgerrors.Wrap(err, "connecting to MQTT broker"))
		}
		opts = append(opts, qhy.WithObserver(pub.Observer()))
		log.Println("publishing events to", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}

	if cfg.Simulate {
		log.Println("using the simulated camera")
	} else {
		log.Println("initializing SDK, firmware upload can take several seconds.")
	}
	c, err := open(cfg, opts...)
	if err != nil {
		log.Fatal(pkgerrors.Wrap(err, "opening camera"))
	}
	defer c.Close()
	chip := c.Chip()
	log.Printf("connected to %s, %dx%d px, %d bit\n", c.Identity(), chip.MaxX, chip.MaxY, chip.BitsPerPixel)

	err = c.Params().Configure(cfg.BootupArgs)
	if err != nil {
		log.Fatal(pkgerrors.Wrap(err, "applying BootupArgs"))
	}
	if cfg.Cooling {
		err = c.SetTemperatureSetpoint(cfg.Setpoint)
		if err != nil {
			log.Println(pkgerrors.Wrap(err, "cooling"))
		}
	}

	m, err := camera.NewMetrics(prometheus.DefaultRegisterer, c)
	if err != nil {
		log.Fatal(err)
	}
	if pub != nil {
		m.OnCapture = pub.Captured
	}

	args := cfg.Recorder
	r := &imgrec.Recorder{Root: args.Root, Prefix: args.Prefix, Enabled: args.Root != ""}
	w := camera.NewHTTPCamera(c, r, m)
	l := locker.New()
	l.DoNotProtect = append(l.DoNotProtect, "cancel")
	locker.Inject(w, l)

	mux := goji.NewMux()
	mux.Use(l.Check)
	w.RT().Bind(mux)

	// clean up the submux string
	hndlrS := server.SubMuxSanitize(cfg.Root)
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Use(middleware.Recoverer)
	root.Handle("/metrics", promhttp.Handler())
	if hndlrS == "/" {
		root.Mount(hndlrS, mux)
	} else {
		root.Mount(hndlrS, http.StripPrefix(hndlrS, mux))
	}
	addr := cfg.Addr + hndlrS
	log.Println("now listening for requests at ", addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, root))
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
	case "probe":
		probe()
		return
	default:
		log.Fatal("unknown command")
	}
}
