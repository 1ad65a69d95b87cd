// smpltool computes pose corrective weights and regressed joint locations
// for SMPL-X, SMPL-H and SUPR body models.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/Faultbox/smplkit/internal/config"
	"github.com/Faultbox/smplkit/internal/logger"
	"github.com/Faultbox/smplkit/internal/operator"
	"github.com/Faultbox/smplkit/internal/ui"
)

// CLI is the command line of smpltool.
type CLI struct {
	ConfigFile string `name:"config" help:"Config file (default: ./smplkit.yaml, then the user config dir)." type:"path" placeholder:"PATH"`
	Debug      bool   `help:"Enable debug logging."`
	LogLevel   string `help:"Log level: debug, info, warn or error."`
	LogFile    string `help:"Also write JSON logs to this file." type:"path" placeholder:"PATH"`
	Quiet      bool   `help:"Do not log to the console." short:"q"`
	NoColor    bool   `help:"Disable syntax highlighting."`

	DataDir       string `help:"Directory holding regressor tables and hand poses." type:"path" placeholder:"DIR"`
	Variant       string `help:"Model variant: SMPLX, SMPLH or SUPR." short:"m"`
	Gender        string `help:"Model gender: female, male or neutral." short:"g"`
	Betas         int    `help:"Number of shape coefficients (10, 300 or 400)."`
	HandPose      string `help:"Hand pose applied after loading: flat or relaxed."`
	HandsRelative bool   `help:"Treat loaded finger rotations as offsets from the relaxed hand."`
	ZUp           bool   `name:"z-up" help:"Place regressed joints in a Z-up scene."`
	AnimFormat    string `help:"Convention of loaded poses and motions: amass (Y-up) or blender (Z-up)."`

	Correctives CorrectivesCmd `cmd:"" help:"Compute pose corrective weights for a pose file."`
	Joints      JointsCmd      `cmd:"" help:"Regress rest-pose joint locations from shape coefficients."`
	Measure     MeasureCmd     `cmd:"" help:"Derive shape coefficients from height and weight."`
	Shape       ShapeCmd       `cmd:"" help:"Reset, randomize or fix the ranges of the body shape keys."`
	Pose        PoseCmd        `cmd:"" help:"Load a pose file and export it as pose JSON."`
	Anim        AnimCmd        `cmd:"" help:"Import an AMASS motion and keyframe it."`
	Variants    VariantsCmd    `cmd:"" help:"List supported model variants."`
	Settings    SettingsCmd    `cmd:"" name:"config" help:"Show or save the effective configuration."`
	Version     VersionCmd     `cmd:"" help:"Show version information."`
}

func (cli *CLI) overrides() config.Overrides {
	return config.Overrides{
		ConfigPath:    cli.ConfigFile,
		Debug:         cli.Debug,
		LogLevel:      cli.LogLevel,
		LogFile:       cli.LogFile,
		DataDir:       cli.DataDir,
		Variant:       cli.Variant,
		Gender:        cli.Gender,
		Betas:         cli.Betas,
		HandPose:      cli.HandPose,
		HandsRelative: cli.HandsRelative,
		ZUp:           cli.ZUp,
		AnimFormat:    cli.AnimFormat,
	}
}

// app is bound into every command's Run.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	op    *operator.Operator
	color bool
	// genderSet is true when the gender came from the command line.
	genderSet bool
}

func newApp(cli *CLI) (*app, error) {
	cfg, err := config.Load(cli.overrides())
	if err != nil {
		return nil, err
	}

	var fileCfg logger.FileConfig
	if cfg.Logging.LogFile != "" {
		fileCfg = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	if err := logger.Init(cfg.Logging.Level, fileCfg, !cli.Quiet); err != nil {
		return nil, err
	}

	op, err := operator.New(cfg, logger.Named("operator"))
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		log:       logger.Named("smpltool"),
		op:        op,
		color:     !cli.NoColor && ui.IsTerminal(os.Stdout),
		genderSet: cli.Gender != "",
	}, nil
}

func main() {
	os.Exit(run())
}

func run() int {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("smpltool"),
		kong.Description("Pose correctives and joint regression for SMPL-family body models"),
		kong.UsageOnError(),
	)

	a, err := newApp(cli)
	if err != nil {
		ui.PrintError(err.Error())
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a.log.Debug("starting",
		zap.String("command", kctx.Command()),
		zap.Stringer("variant", a.cfg.Model.Variant),
		zap.String("gender", string(a.cfg.Model.Gender)))

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(a); err != nil {
		a.log.Error("command failed", zap.String("command", kctx.Command()), zap.Error(err))
		ui.PrintError(err.Error())
		return 1
	}

	hits, misses := a.op.Cache().Stats()
	a.log.Debug("done", zap.Int("regressor_cache_hits", hits), zap.Int("regressor_cache_misses", misses))
	return 0
}
