// Package pipeline собирает пять пайплайнов бота из общих ресурсов.
//
// Каждый пайплайн — значение Pipeline, построенное функцией композиции
// (Follow, Signup, SetWatermarkImage, Watermarking, Signout) поверх
// *CommonResources. Пайплайн состоит из триггера (очередь, таймер или
// оба) и определения workflow для engine.
//
// Любой worker может быть заменён удалённым HTTP endpoint'ом
// (Options.Remotes) либо другой реализацией (Options.Overrides);
// capability и таймаут при этом сохраняются.
package pipeline

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/shaiso/fooroh/internal/bot"
	"github.com/shaiso/fooroh/internal/domain"
	"github.com/shaiso/fooroh/internal/engine"
	"github.com/shaiso/fooroh/internal/worker"
)

// Имена пайплайнов.
const (
	NameFollow            = "follow"
	NameSignup            = "signup"
	NameSetWatermarkImage = "set-watermark-image"
	NameWatermarking      = "watermarking"
	NameSignout           = "signout"
)

// Default configuration values.
const (
	defaultTimeout             = 5 * time.Minute
	defaultWatermarkingTimeout = 10 * time.Minute
	defaultSignupSchedule      = "rate(4 minutes)"
	defaultSignoutSchedule     = "rate(2 minutes)"
)

// Timer — таймерный триггер пайплайна.
type Timer struct {
	// Schedule — расписание (см. router.ParseSchedule).
	Schedule string

	// Enabled — выключенный таймер не тикает.
	Enabled bool

	// Worker — имя tick worker'а.
	Worker string

	// Ticker создаёт tick worker; starter — engine этого пайплайна.
	Ticker func(starter worker.Starter) worker.Spec
}

// Pipeline — триггер и workflow одной возможности бота.
type Pipeline struct {
	// Name — имя пайплайна.
	Name string

	// Queue — очередь-источник; пустая, если пайплайн запускается иначе.
	Queue string

	// Timer — таймерный триггер или nil.
	Timer *Timer

	// Definition — workflow пайплайна.
	Definition engine.Definition
}

// Workers возвращает имена всех worker'ов пайплайна, включая tick worker.
func (p *Pipeline) Workers() []string {
	names := p.Definition.StepNames()
	if p.Timer != nil {
		names = append([]string{p.Timer.Worker}, names...)
	}
	return names
}

// Options — параметры композиции.
type Options struct {
	// Deps — зависимости worker'ов бота. Signup заполняется при сборке Set.
	Deps bot.Deps

	// SignupEnabled включает таймер signup (по умолчанию выключен).
	SignupEnabled bool

	// SignupSchedule (default: rate(4 minutes))
	SignupSchedule string

	// SignoutSchedule (default: rate(2 minutes))
	SignoutSchedule string

	// SignoutDisabled выключает таймер signout.
	SignoutDisabled bool

	// KeepOriginal выбирает вариант watermarking без удаления исходного поста.
	KeepOriginal bool

	// Remotes — worker → URL удалённой реализации.
	Remotes map[string]string

	// Overrides — worker → другая реализация.
	Overrides map[string]worker.Worker

	// HTTPClient — клиент удалённых worker'ов (default: http.DefaultClient).
	HTTPClient *http.Client

	// Logger
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// bind проверяет capability worker'а и применяет замены.
func bind(res *CommonResources, opts Options, spec worker.Spec) (*worker.Bound, error) {
	bound, err := worker.Bind(spec, res, opts.logger())
	if err != nil {
		return nil, fmt.Errorf("bind worker %s: %w", spec.Name, err)
	}
	if impl, ok := opts.Overrides[spec.Name]; ok {
		return bound.Replace(impl), nil
	}
	if url, ok := opts.Remotes[spec.Name]; ok {
		opts.logger().Info("worker replaced by remote endpoint", "worker", spec.Name, "url", url)
		return bound.Replace(worker.NewRemote(spec.Name, url, opts.HTTPClient)), nil
	}
	return bound, nil
}

// stepDef — шаг до привязки worker'а. input — имя selector'а
// (см. engine.ParseSelector); пустое — выход предыдущего шага.
type stepDef struct {
	spec    worker.Spec
	input   string
	accepts engine.Shape
	returns engine.Shape
	retry   domain.RetryPolicy
}

// object — шаг, принимающий и возвращающий JSON объект.
func object(spec worker.Spec) stepDef {
	return stepDef{spec: spec, accepts: engine.ShapeObject, returns: engine.ShapeObject}
}

// fromQueue — первый шаг очередного пайплайна: берёт body сообщения.
func fromQueue(spec worker.Spec) stepDef {
	s := object(spec)
	s.input = "first-element-body"
	return s
}

func retryOnce(s stepDef) stepDef {
	s.retry = domain.RetryOnce
	return s
}

// define привязывает worker'ы и проверяет определение.
func define(res *CommonResources, opts Options, name string, timeout time.Duration, input engine.Shape, steps ...stepDef) (engine.Definition, error) {
	def := engine.Definition{Name: name, Timeout: timeout, Input: input}
	for _, s := range steps {
		input, err := engine.ParseSelector(s.input)
		if err != nil {
			return engine.Definition{}, fmt.Errorf("pipeline %s: step %s: %w", name, s.spec.Name, err)
		}
		bound, err := bind(res, opts, s.spec)
		if err != nil {
			return engine.Definition{}, fmt.Errorf("pipeline %s: %w", name, err)
		}
		def.Steps = append(def.Steps, engine.StepSpec{
			Name:    s.spec.Name,
			Worker:  bound,
			Input:   input,
			Accepts: s.accepts,
			Returns: s.returns,
			Retry:   s.retry,
		})
	}
	if err := def.Validate(); err != nil {
		return engine.Definition{}, fmt.Errorf("pipeline %s: %w", name, err)
	}
	return def, nil
}

// Follow: очередь followed → touch-user-file → follow-back → send-dm.
func Follow(res *CommonResources, opts Options) (*Pipeline, error) {
	d := opts.Deps
	def, err := define(res, opts, NameFollow, defaultTimeout, engine.ShapeBatch,
		fromQueue(bot.TouchUserFile(d)),
		object(bot.FollowBack(d)),
		object(bot.SendDM(d)),
	)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Name: NameFollow, Queue: bot.QueueFollowed, Definition: def}, nil
}

// Signup: таймер → signup-executor запускает execution'ы {convo_id} →
// get-pending-signups → notify-signup.
func Signup(res *CommonResources, opts Options) (*Pipeline, error) {
	d := opts.Deps
	def, err := define(res, opts, NameSignup, defaultTimeout, engine.ShapeObject,
		object(bot.GetPendingSignups(d)),
		object(bot.NotifySignup(d)),
	)
	if err != nil {
		return nil, err
	}

	schedule := opts.SignupSchedule
	if schedule == "" {
		schedule = defaultSignupSchedule
	}

	return &Pipeline{
		Name: NameSignup,
		Timer: &Timer{
			Schedule: schedule,
			Enabled:  opts.SignupEnabled,
			Worker:   bot.NameSignupExecutor,
			Ticker: func(starter worker.Starter) worker.Spec {
				deps := d
				deps.Signup = starter
				return bot.SignupExecutor(deps)
			},
		},
		Definition: def,
	}, nil
}

// SetWatermarkImage: очередь set-watermark-img → ingest-and-store →
// notify-watermark-image.
func SetWatermarkImage(res *CommonResources, opts Options) (*Pipeline, error) {
	d := opts.Deps
	def, err := define(res, opts, NameSetWatermarkImage, defaultTimeout, engine.ShapeBatch,
		fromQueue(bot.IngestAndStore(d)),
		object(bot.NotifyWatermarkImage(d)),
	)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Name: NameSetWatermarkImage, Queue: bot.QueueSetWatermarkImg, Definition: def}, nil
}

// Watermarking: очередь watermarking → fetch-original-image →
// apply-watermark → publish-result → delete-original-post-record.
// С KeepOriginal последний шаг не выполняется.
func Watermarking(res *CommonResources, opts Options) (*Pipeline, error) {
	d := opts.Deps
	steps := []stepDef{
		fromQueue(bot.FetchOriginalImage(d)),
		object(bot.ApplyWatermark(d)),
		retryOnce(object(bot.PublishResult(d))),
	}
	if !opts.KeepOriginal {
		steps = append(steps, retryOnce(object(bot.DeleteOriginalPost(d))))
	}

	def, err := define(res, opts, NameWatermarking, defaultWatermarkingTimeout, engine.ShapeBatch, steps...)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Name: NameWatermarking, Queue: bot.QueueWatermarking, Definition: def}, nil
}

// Signout: таймер → signout-discovery ставит отписавшихся в очередь
// signout → delete-user-files → delete-watermarks → send-unfollow-dm.
func Signout(res *CommonResources, opts Options) (*Pipeline, error) {
	d := opts.Deps
	def, err := define(res, opts, NameSignout, defaultTimeout, engine.ShapeBatch,
		fromQueue(bot.DeleteUserFiles(d)),
		object(bot.DeleteWatermarks(d)),
		object(bot.SendUnfollowDM(d)),
	)
	if err != nil {
		return nil, err
	}

	schedule := opts.SignoutSchedule
	if schedule == "" {
		schedule = defaultSignoutSchedule
	}

	return &Pipeline{
		Name:  NameSignout,
		Queue: bot.QueueSignout,
		Timer: &Timer{
			Schedule: schedule,
			Enabled:  !opts.SignoutDisabled,
			Worker:   bot.NameSignoutDiscovery,
			Ticker:   func(worker.Starter) worker.Spec { return bot.SignoutDiscovery(d) },
		},
		Definition: def,
	}, nil
}

// Compose строит все пять пайплайнов и проверяет, что каждая замена
// относится к существующему worker'у.
func Compose(res *CommonResources, opts Options) ([]*Pipeline, error) {
	builders := []func(*CommonResources, Options) (*Pipeline, error){
		Follow, Signup, SetWatermarkImage, Watermarking, Signout,
	}

	pipelines := make([]*Pipeline, 0, len(builders))
	known := make(map[string]bool)
	for _, build := range builders {
		p, err := build(res, opts)
		if err != nil {
			return nil, err
		}
		for _, name := range p.Workers() {
			known[name] = true
		}
		pipelines = append(pipelines, p)
	}

	var unknown []string
	for name := range opts.Remotes {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	for name := range opts.Overrides {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %v", ErrUnknownRemote, unknown)
	}

	return pipelines, nil
}
