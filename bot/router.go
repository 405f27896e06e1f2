package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"enviofinder/data"
	"enviofinder/enums"
	"enviofinder/models"
	"enviofinder/search"
)

// Sender pushes a message to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Receiver long-polls for inbound updates.
type Receiver interface {
	GetUpdates(ctx context.Context, offset int64) ([]models.Update, error)
}

// Searcher is the orchestrator surface the router drives.
type Searcher interface {
	Search(ctx context.Context, userID int64, criterion search.Criterion, scope enums.SearchScope) (*search.Result, error)
}

// Registry is the subscription surface exposed to chat commands.
type Registry interface {
	Add(sub data.Subscription) (int64, error)
	Remove(id, userID int64) error
	ListActive(userID int64) ([]data.Subscription, error)
	Reactivate(id, userID int64) error
}

// Settings is the user-settings surface exposed to chat commands.
type Settings interface {
	GetOrCreate(userID int64) (*data.UserSettings, error)
	SetRegion(userID int64, regionCode string) error
	SetStore(userID int64, storeSlug string) error
	SetDepartment(userID int64, departmentID string) error
	GrantCredit(userID int64, amount float64, reason string) (float64, error)
}

// Directory resolves region and store selections.
type Directory interface {
	ListRegions() ([]data.Region, error)
	GetRegion(code string) (*data.Region, error)
	GetStore(slug string) (*data.Store, error)
}

// ProductLookup resolves /p_<id> availability-check commands.
type ProductLookup interface {
	GetProduct(id string) (*data.Product, error)
}

// Command is a parsed chat command: "/del_17" becomes {Name: "del", Arg: "17"}.
// One generic parser replaces per-runtime-id handler registration.
type Command struct {
	Name string
	Arg  string
}

// ParseCommand splits a leading-slash message into name and embedded argument.
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Command{}, false
	}

	token := strings.Fields(text[1:])
	if len(token) == 0 || token[0] == "" {
		return Command{}, false
	}

	name, arg, _ := strings.Cut(token[0], "_")
	if name == "" {
		return Command{}, false
	}

	return Command{Name: name, Arg: arg}, true
}

// Router dispatches inbound chat updates to searches, settings changes and
// subscription commands. It runs on a single goroutine; per-chat state needs
// no locking.
type Router struct {
	receiver  Receiver
	sender    Sender
	searcher  Searcher
	subs      Registry
	settings  Settings
	directory Directory
	products  ProductLookup

	defaultFreq time.Duration
	adminChatID int64
	logger      *slog.Logger

	// criterion of each chat's most recent search, so /sub knows what to
	// subscribe to
	lastCriterion map[int64]search.Criterion
}

func NewRouter(receiver Receiver, sender Sender, searcher Searcher, subs Registry, settings Settings, directory Directory, products ProductLookup, defaultFreq time.Duration, adminChatID int64, logger *slog.Logger) *Router {
	return &Router{
		receiver:      receiver,
		sender:        sender,
		searcher:      searcher,
		subs:          subs,
		settings:      settings,
		directory:     directory,
		products:      products,
		defaultFreq:   defaultFreq,
		adminChatID:   adminChatID,
		logger:        logger,
		lastCriterion: make(map[int64]search.Criterion),
	}
}

// Run is the inbound long-poll loop.
func (r *Router) Run(ctx context.Context) {
	var offset int64
	r.logger.Info("starting chat update loop")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping chat update loop")
			return
		default:
		}

		updates, err := r.receiver.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("get updates failed", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			r.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate produces and sends the reply for one inbound update.
func (r *Router) HandleUpdate(ctx context.Context, update models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	if !update.IsText() {
		r.reply(ctx, chatID, "Solo se admiten textos.")
		return
	}

	text := update.Message.Text
	if cmd, ok := ParseCommand(text); ok {
		r.reply(ctx, chatID, r.dispatch(ctx, chatID, cmd))
		return
	}

	r.reply(ctx, chatID, r.runSearch(ctx, chatID, search.TermCriterion(text), enums.ScopeRegion))
}

func (r *Router) dispatch(ctx context.Context, chatID int64, cmd Command) string {
	switch cmd.Name {
	case "start":
		return msgWelcome
	case "ayuda":
		return r.help()
	case "lista":
		return r.listSubscriptions(chatID)
	case "credito":
		return r.creditBalance(chatID)
	case "sub":
		return r.subscribe(chatID, cmd.Arg)
	case "del":
		return r.unsubscribe(chatID, cmd.Arg)
	case "re":
		return r.reactivate(chatID, cmd.Arg)
	case "p":
		return r.productLink(cmd.Arg)
	case "recarga":
		return r.grantCredit(chatID, cmd.Arg)
	case "t":
		return r.selectStore(chatID, cmd.Arg)
	case "dep":
		return r.browseDepartment(ctx, chatID, cmd.Arg)
	default:
		return r.selectRegion(chatID, cmd.Name)
	}
}

func (r *Router) runSearch(ctx context.Context, chatID int64, criterion search.Criterion, scope enums.SearchScope) string {
	if criterion.Value == "" {
		return msgBadCommand
	}

	result, err := r.searcher.Search(ctx, chatID, criterion, scope)
	if err != nil {
		if errors.Is(err, search.ErrCreditExhausted) {
			return msgCreditExhausted
		}
		if errors.Is(err, search.ErrNoStoreSelected) {
			return msgNoStoreSelected
		}
		// Deliberate policy: the literal failure goes to the user.
		return "Ocurrió la siguiente excepción: " + err.Error()
	}

	r.lastCriterion[chatID] = criterion
	return FormatResult(result)
}

func (r *Router) help() string {
	regions, err := r.directory.ListRegions()
	if err != nil {
		r.logger.Error("list regions failed", "error", err)
		return msgInternal
	}
	return FormatHelp(regions)
}

func (r *Router) selectRegion(chatID int64, code string) string {
	region, err := r.directory.GetRegion(code)
	if err != nil {
		r.logger.Error("get region failed", "error", err)
		return msgInternal
	}
	if region == nil {
		return msgBadCommand
	}

	if _, err := r.settings.GetOrCreate(chatID); err != nil {
		r.logger.Error("load settings failed", "error", err)
		return msgInternal
	}
	if err := r.settings.SetRegion(chatID, region.Code); err != nil {
		r.logger.Error("set region failed", "error", err)
		return msgInternal
	}

	return "Ha seleccionado la provincia: " + region.Name + "."
}

func (r *Router) selectStore(chatID int64, slug string) string {
	store, err := r.directory.GetStore(slug)
	if err != nil {
		r.logger.Error("get store failed", "error", err)
		return msgInternal
	}
	if store == nil {
		return msgBadCommand
	}

	if _, err := r.settings.GetOrCreate(chatID); err != nil {
		r.logger.Error("load settings failed", "error", err)
		return msgInternal
	}
	if err := r.settings.SetStore(chatID, store.Slug); err != nil {
		r.logger.Error("set store failed", "error", err)
		return msgInternal
	}

	return "Ha seleccionado la tienda: " + store.Name + "."
}

func (r *Router) subscribe(chatID int64, freqArg string) string {
	criterion, ok := r.lastCriterion[chatID]
	if !ok {
		return "Primero realice una búsqueda; luego /sub la convierte en una suscripción."
	}

	settings, err := r.settings.GetOrCreate(chatID)
	if err != nil {
		r.logger.Error("load settings failed", "error", err)
		return msgInternal
	}

	freq := int(r.defaultFreq.Seconds())
	if freqArg != "" {
		n, err := strconv.Atoi(freqArg)
		if err != nil || n <= 0 {
			return msgBadCommand
		}
		freq = n
	}

	id, err := r.subs.Add(data.Subscription{
		UserID:               chatID,
		Kind:                 criterion.Kind,
		Criterion:            criterion.Value,
		RegionCode:           settings.RegionCode,
		ScanFrequencySeconds: freq,
	})
	if errors.Is(err, data.ErrSubscriptionLimit) {
		return msgSubscriptionLimit
	}
	if err != nil {
		r.logger.Error("add subscription failed", "error", err)
		return msgInternal
	}

	return "Suscripción creada para \"" + criterion.Value + "\". Use /del_" + strconv.FormatInt(id, 10) + " para eliminarla."
}

func (r *Router) unsubscribe(chatID int64, arg string) string {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return msgBadCommand
	}

	if err := r.subs.Remove(id, chatID); err != nil {
		r.logger.Error("remove subscription failed", "error", err)
		return msgInternal
	}

	return "Suscripción eliminada."
}

func (r *Router) reactivate(chatID int64, arg string) string {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return msgBadCommand
	}

	if err := r.subs.Reactivate(id, chatID); err != nil {
		r.logger.Error("reactivate subscription failed", "error", err)
		return msgInternal
	}

	return "Suscripción reactivada. Volverá a recibir avisos."
}

func (r *Router) listSubscriptions(chatID int64) string {
	subs, err := r.subs.ListActive(chatID)
	if err != nil {
		r.logger.Error("list subscriptions failed", "error", err)
		return msgInternal
	}
	return FormatSubscriptionList(subs)
}

func (r *Router) creditBalance(chatID int64) string {
	settings, err := r.settings.GetOrCreate(chatID)
	if err != nil {
		r.logger.Error("load settings failed", "error", err)
		return msgInternal
	}
	return "Crédito disponible: " + strconv.FormatFloat(settings.Credit, 'f', -1, 64)
}

func (r *Router) productLink(id string) string {
	if id == "" {
		return msgBadCommand
	}

	product, err := r.products.GetProduct(id)
	if err != nil {
		r.logger.Error("get product failed", "error", err)
		return msgInternal
	}
	if product == nil {
		return msgBadCommand
	}

	return "Consultando: " + product.Name + "\n\nClick para ver en: " + product.Link
}

// browseDepartment remembers the department selection and lists it.
func (r *Router) browseDepartment(ctx context.Context, chatID int64, departmentID string) string {
	if departmentID == "" {
		return msgBadCommand
	}

	if _, err := r.settings.GetOrCreate(chatID); err != nil {
		r.logger.Error("load settings failed", "error", err)
		return msgInternal
	}
	if err := r.settings.SetDepartment(chatID, departmentID); err != nil {
		r.logger.Error("set department failed", "error", err)
		return msgInternal
	}

	return r.runSearch(ctx, chatID, search.DepartmentCriterion(departmentID), enums.ScopeStore)
}

// grantCredit handles /recarga_<usuario>_<monto>, admin only.
func (r *Router) grantCredit(chatID int64, arg string) string {
	if r.adminChatID == 0 || chatID != r.adminChatID {
		return msgBadCommand
	}

	userArg, amountArg, found := strings.Cut(arg, "_")
	if !found {
		return msgBadCommand
	}
	userID, err := strconv.ParseInt(userArg, 10, 64)
	if err != nil {
		return msgBadCommand
	}
	amount, err := strconv.ParseFloat(amountArg, 64)
	if err != nil || amount <= 0 {
		return msgBadCommand
	}

	if _, err := r.settings.GetOrCreate(userID); err != nil {
		r.logger.Error("load settings failed", "error", err)
		return msgInternal
	}
	balance, err := r.settings.GrantCredit(userID, amount, "admin top-up")
	if err != nil {
		r.logger.Error("grant credit failed", "user", userID, "error", err)
		return msgInternal
	}

	return "Crédito recargado. Nuevo saldo de " + userArg + ": " + strconv.FormatFloat(balance, 'f', -1, 64)
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	if err := r.sender.SendMessage(ctx, chatID, text); err != nil {
		r.logger.Error("send message failed", "chat", chatID, "error", err)
	}
}
