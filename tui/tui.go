// Package tui provides a terminal user interface for monitoring and managing
// the chat service in-process. It uses the tview library to build a tabbed
// interface: a Dashboard page with live statistics and a Settings page for
// display preferences and API key management.
package tui

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"geminichat"
)

// Global TUI application and layout state. The TUI runs at most once per
// process, in the foreground, so package-level wiring keeps the page
// constructors and the periodic updater simple.
var (
	app       *tview.Application // The main tview application instance.
	pages     *tview.Pages       // Manages the Dashboard and Settings views.
	tabInfo   *tview.TextView    // Shows available tabs and navigation hints.
	statusBar *tview.TextView    // Shows temporary status messages at the very bottom.

	svcInstance *geminichat.Service // Chat service the TUI observes and manages.

	// Dashboard panels, updated periodically with live data.
	serviceStatusView *tview.TextView
	legendView        *tview.TextView
	recentErrorsView  *tview.TextView
	chatStatsView     *tview.TextView
	keyPerfView       *tview.TextView
	systemInfoView    *tview.TextView

	// User-configurable display settings with their defaults.
	refreshRateSeconds int32 = 2                // Dashboard refresh interval in seconds. Atomically accessed.
	maxErrorsShown           = 10               // Recent errors displayed on the dashboard.
	keyDisplayFormat         = keyDisplayMasked // How credentials are rendered.

	refreshRateOptionsStr = []string{"1", "2", "3", "5", "10"}
	refreshRateOptionsInt = []int{1, 2, 3, 5, 10}

	maxErrorsOptionsStr = []string{"5", "10"}
	maxErrorsOptionsInt = []int{5, 10}

	keyDisplayOptions = []string{keyDisplayMasked, keyDisplayFull, keyDisplayPrefix}

	dataTicker       *time.Ticker    // Drives the periodic dashboard refresh.
	keyListContainer *tview.Flex     // Holds the per-credential checkboxes on the Settings page.
	dashboardPage    tview.Primitive // Root of the Dashboard view, focus target on tab switch.
	settingsPage     tview.Primitive // Root of the Settings view, focus target on tab switch.
)

// Credential display formats offered on the Settings page.
const (
	keyDisplayMasked = "Masked"
	keyDisplayFull   = "Full"
	keyDisplayPrefix = "First 8 Chars"
)

// Page names for the tview.Pages widget.
const (
	pageDashboard = "Dashboard"
	pageSettings  = "Settings"
)

var pageNames = []string{pageDashboard, pageSettings}
var currentPageIndex = 0

// currentRefreshInterval reads the refresh rate setting as a time.Duration.
func currentRefreshInterval() time.Duration {
	return time.Duration(atomic.LoadInt32(&refreshRateSeconds)) * time.Second
}

// ShowStatusMessage displays a message in the status bar and clears it after
// the given duration, unless a newer message replaced it in the meantime.
// Safe to call from any goroutine; the actual UI writes are queued onto the
// event loop from short-lived goroutines.
func ShowStatusMessage(message string, duration time.Duration) {
	if statusBar == nil || app == nil {
		return
	}
	go app.QueueUpdateDraw(func() {
		statusBar.SetText(message)
	})
	time.AfterFunc(duration, func() {
		app.QueueUpdateDraw(func() {
			if statusBar.GetText(false) == message {
				statusBar.SetText("")
			}
		})
	})
}

// createDashboardPage builds the Dashboard view: a header line above a grid
// of panels for service status, navigation legend, recent errors, chat and
// cache statistics, per-credential performance, and process information.
// The panel TextViews are kept in package variables so updateData can refresh
// them.
func createDashboardPage() tview.Primitive {
	header := tview.NewTextView().
		SetText("Gemini Chat TUI Dashboard").
		SetTextAlign(tview.AlignCenter)

	serviceStatusView = tview.NewTextView().SetDynamicColors(true)
	serviceStatusView.SetBorder(true)
	serviceStatusView.SetTitle("Service Status")

	legendView = tview.NewTextView().
		SetText("Ctrl+C: Quit | Ctrl+N/P: Tabs | Tab/Arrows: Navigate | Enter/Space: Select/Toggle")
	legendView.SetBorder(true)
	legendView.SetTitle("Legend")

	recentErrorsView = tview.NewTextView().SetScrollable(true)
	recentErrorsView.SetBorder(true)
	recentErrorsView.SetTitle(fmt.Sprintf("Recent Errors (Last %d)", maxErrorsShown))

	chatStatsView = tview.NewTextView()
	chatStatsView.SetBorder(true)
	chatStatsView.SetTitle("Chat Statistics")

	keyPerfView = tview.NewTextView().SetScrollable(true)
	keyPerfView.SetBorder(true)
	keyPerfView.SetTitle("API Key Performance")

	systemInfoView = tview.NewTextView()
	systemInfoView.SetBorder(true)
	systemInfoView.SetTitle("System Information")

	contentGrid := tview.NewGrid().
		SetRows(4, 0, 0).
		SetColumns(0, 0, 0).
		SetBorders(false)

	contentGrid.AddItem(serviceStatusView, 0, 0, 1, 1, 0, 0, false)
	contentGrid.AddItem(legendView, 0, 1, 1, 2, 0, 0, false)
	contentGrid.AddItem(recentErrorsView, 1, 0, 1, 3, 0, 0, false)
	contentGrid.AddItem(chatStatsView, 2, 0, 1, 1, 0, 0, false)
	contentGrid.AddItem(keyPerfView, 2, 1, 1, 1, 0, 0, false)
	contentGrid.AddItem(systemInfoView, 2, 2, 1, 1, 0, 0, false)

	return tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, 1, 0, false).
		AddItem(contentGrid, 0, 1, true)
}

// rebuildKeySettingsList clears and repopulates the credential checkbox list
// on the Settings page from a fresh pool snapshot. It mutates primitives
// directly, so it must run on the event goroutine (or before the application
// starts).
func rebuildKeySettingsList() {
	if keyListContainer == nil || svcInstance == nil {
		return
	}

	keyListContainer.Clear()

	infos := svcInstance.Keyring().Snapshot()
	if len(infos) == 0 {
		keyListContainer.AddItem(tview.NewTextView().SetText("No API keys pooled."), 0, 1, false)
		return
	}

	header := fmt.Sprintf("%-20s %s", "API Key Identifier", "Status (Space Toggles)")
	keyListContainer.AddItem(tview.NewTextView().SetText(header), 1, 0, false)
	keyListContainer.AddItem(tview.NewTextView().SetText(strings.Repeat("-", len(header)+5)), 1, 0, false)

	for _, info := range infos {
		checkbox := tview.NewCheckbox().
			SetLabel(fmt.Sprintf("%-20s (%s)", keyDisplayLabel(info), info.Status)).
			SetChecked(info.Enabled)
		checkbox.SetChangedFunc(func(checked bool) {
			enabled, err := svcInstance.Keyring().Toggle(info.Key)
			if err != nil {
				// The key can vanish between snapshot and toggle when the
				// licenses API removes it; revert the visual state.
				checkbox.SetChecked(!checked)
				ShowStatusMessage(fmt.Sprintf("Error toggling key %s: %v", info.Name, err), 3*time.Second)
				return
			}
			status, verb := "Disabled", "disabled"
			if enabled {
				status, verb = "Active", "enabled"
			}
			checkbox.SetLabel(fmt.Sprintf("%-20s (%s)", keyDisplayLabel(info), status))
			ShowStatusMessage(fmt.Sprintf("API key %s %s", info.Name, verb), 2*time.Second)
			go updateData()
		})
		keyListContainer.AddItem(checkbox, 1, 0, true)
	}
}

// keyDisplayLabel renders a credential identifier according to the current
// display format setting.
func keyDisplayLabel(info geminichat.CredentialInfo) string {
	switch keyDisplayFormat {
	case keyDisplayFull:
		return info.Key
	case keyDisplayPrefix:
		if len(info.Key) > 8 {
			return info.Key[:8] + "..."
		}
		return info.Key
	default:
		return info.Name
	}
}

// createSettingsPage builds the Settings view: a form with the display
// preference dropdowns next to the credential management checkbox list.
func createSettingsPage() tview.Primitive {
	form := tview.NewForm()
	form.SetBorder(false)

	currentRateIndex := 0
	currentRate := int(atomic.LoadInt32(&refreshRateSeconds))
	for i, rate := range refreshRateOptionsInt {
		if rate == currentRate {
			currentRateIndex = i
			break
		}
	}
	form.AddDropDown("UI Refresh Rate (sec)", refreshRateOptionsStr, currentRateIndex,
		func(_ string, optionIndex int) {
			atomic.StoreInt32(&refreshRateSeconds, int32(refreshRateOptionsInt[optionIndex]))
			if dataTicker != nil {
				dataTicker.Reset(currentRefreshInterval())
			}
			ShowStatusMessage(fmt.Sprintf("Refresh rate set to %d seconds", refreshRateOptionsInt[optionIndex]), 2*time.Second)
		})

	currentMaxErrorsIndex := 0
	for i, val := range maxErrorsOptionsInt {
		if val == maxErrorsShown {
			currentMaxErrorsIndex = i
			break
		}
	}
	form.AddDropDown("Max Recent Errors Displayed", maxErrorsOptionsStr, currentMaxErrorsIndex,
		func(_ string, optionIndex int) {
			maxErrorsShown = maxErrorsOptionsInt[optionIndex]
			if recentErrorsView != nil {
				recentErrorsView.SetTitle(fmt.Sprintf("Recent Errors (Last %d)", maxErrorsShown))
			}
			go updateData()
		})

	currentFormatIndex := 0
	for i, format := range keyDisplayOptions {
		if format == keyDisplayFormat {
			currentFormatIndex = i
			break
		}
	}
	form.AddDropDown("API Key Display Format", keyDisplayOptions, currentFormatIndex,
		func(_ string, optionIndex int) {
			keyDisplayFormat = keyDisplayOptions[optionIndex]
			rebuildKeySettingsList()
			go updateData()
		})

	form.AddTextView("", "Note: Dropdown changes are applied immediately.", 0, 1, true, false)

	keyListContainer = tview.NewFlex().SetDirection(tview.FlexRow)
	keySectionFrame := tview.NewFrame(keyListContainer).
		SetBorders(0, 0, 0, 0, 0, 0).
		AddText("Enable/Disable API Keys", true, tview.AlignCenter, tview.Styles.SecondaryTextColor)

	layout := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(form, 0, 2, true).
		AddItem(tview.NewBox().SetBorder(false), 1, 0, false).
		AddItem(keySectionFrame, 0, 3, true)

	layout.SetBorder(true)
	layout.SetTitle("Settings")
	layout.SetBorderPadding(1, 1, 1, 1)
	return layout
}

// formatBytes converts a byte count into a human-readable string using
// binary prefixes (B, KiB, MiB, ...).
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// formatDuration renders a duration as "1d 2h 3m 4s", dropping leading zero
// components and rounding to whole seconds.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, " ")
}

// updateData takes fresh snapshots from the chat service, formats them, and
// queues the dashboard panel updates onto the event loop. Called from the
// ticker goroutine and after settings changes; never call it directly from
// the event goroutine, the queued update would deadlock there.
func updateData() {
	if svcInstance == nil || app == nil {
		return
	}

	snap := svcInstance.Stats().Snapshot()
	rt := svcInstance.Stats().Runtime()
	infos := svcInstance.Keyring().Snapshot()
	cacheSize := svcInstance.Cache().Size()
	cfg := svcInstance.Config()

	// Service Status panel.
	enabledKeys := 0
	for _, info := range infos {
		if info.Enabled {
			enabledKeys++
		}
	}
	statusText := fmt.Sprintf("Status: %s\nUptime: %s\nModel: %s\nAPI Keys: %d/%d enabled",
		rt.Status, formatDuration(time.Since(rt.StartedAt)), cfg.Model, enabledKeys, len(infos))

	// Chat Statistics panel.
	requestsForRate := snap.TotalRequests
	if requestsForRate == 0 {
		requestsForRate = 1
	}
	errorRate := float64(snap.TotalFailures) / float64(requestsForRate) * 100
	lookups := snap.CacheHits + snap.CacheMisses
	if lookups == 0 {
		lookups = 1
	}
	hitRate := float64(snap.CacheHits) / float64(lookups) * 100
	statsText := fmt.Sprintf(
		"Total Requests: %d\nSuccessful: %d\nFailed: %d\nError Rate: %.2f%%\nAvg. Latency: %.2f ms\nCache Hits: %d\nCache Misses: %d\nCache Hit Rate: %.2f%%\nCache Size: %d",
		snap.TotalRequests, snap.TotalSuccesses, snap.TotalFailures, errorRate,
		float64(snap.AverageLatencyMicroseconds)/1000.0,
		snap.CacheHits, snap.CacheMisses, hitRate, cacheSize,
	)

	// API Key Performance panel.
	var keyText strings.Builder
	header := fmt.Sprintf("%-18s | %-8s | %-8s | %-8s | %-12s | %s\n", "Name/Key", "Reqs", "Success", "Fails", "Avg Lat(ms)", "Status")
	keyText.WriteString(header)
	keyText.WriteString(strings.Repeat("-", len(header)+2) + "\n")
	for _, info := range infos {
		keyText.WriteString(fmt.Sprintf("%-18s | %-8d | %-8d | %-8d | %-12.2f | %s\n",
			keyDisplayLabel(info), info.Requests, info.Successes, info.Failures,
			float64(info.AverageLatencyMicroseconds)/1000.0,
			info.Status,
		))
	}

	// Recent Errors panel.
	var errorsText strings.Builder
	errs := snap.RecentErrors
	if len(errs) > maxErrorsShown {
		errs = errs[:maxErrorsShown]
	}
	if len(errs) == 0 {
		errorsText.WriteString("No errors reported yet.")
	} else {
		for i, detail := range errs {
			errorsText.WriteString(fmt.Sprintf("%d. %s [%s] key %s model %s: %s\n",
				i+1, detail.Timestamp.Format("15:04:05"), detail.ErrorType,
				detail.APIKeyID, detail.Model, detail.Message))
		}
	}

	// System Information panel.
	sysText := fmt.Sprintf(
		"Service Uptime: %s\nGo Process Memory:\n  Alloc: %s\n  Sys:   %s\nGo Version: %s\nGoroutines: %d",
		formatDuration(time.Since(rt.StartedAt)),
		formatBytes(rt.MemAllocBytes),
		formatBytes(rt.MemSysBytes),
		rt.GoVersion,
		rt.NumGoroutine,
	)

	app.QueueUpdateDraw(func() {
		if serviceStatusView != nil {
			serviceStatusView.SetText(statusText)
		}
		if chatStatsView != nil {
			chatStatsView.SetText(statsText)
		}
		if keyPerfView != nil {
			keyPerfView.SetText(keyText.String())
		}
		if recentErrorsView != nil {
			recentErrorsView.SetText(errorsText.String())
			recentErrorsView.ScrollToBeginning()
		}
		if systemInfoView != nil {
			systemInfoView.SetText(sysText)
		}
	})
}

// switchToPage activates the page at the given index (modulo the page list),
// refreshes the tab bar, and moves focus into the new page. Runs on the
// event goroutine via the global input capture.
func switchToPage(index int) {
	currentPageIndex = (index + len(pageNames)) % len(pageNames)
	pages.SwitchToPage(pageNames[currentPageIndex])
	updateTabInfo()
	if pageNames[currentPageIndex] == pageDashboard {
		app.SetFocus(dashboardPage)
		return
	}
	rebuildKeySettingsList()
	app.SetFocus(settingsPage)
}

// Start launches the terminal interface for the given chat service and
// blocks until the user quits. The dashboard refreshes on a ticker whose
// interval follows the Settings page; credential toggles take effect in the
// live rotation immediately.
func Start(svc *geminichat.Service) error {
	svcInstance = svc

	app = tview.NewApplication()

	pages = tview.NewPages()
	dashboardPage = createDashboardPage()
	pages.AddPage(pageDashboard, dashboardPage, true, true)
	settingsPage = createSettingsPage()
	pages.AddPage(pageSettings, settingsPage, true, false)
	rebuildKeySettingsList()

	tabInfo = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter)
	updateTabInfo()

	statusBar = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter)
	statusBar.SetText("")

	mainLayout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(pages, 0, 1, true).
		AddItem(tabInfo, 1, 0, false).
		AddItem(statusBar, 1, 0, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlN:
			switchToPage(currentPageIndex + 1)
			return nil
		case tcell.KeyCtrlP:
			switchToPage(currentPageIndex - 1)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		}
		return event
	})

	dataTicker = time.NewTicker(currentRefreshInterval())
	done := make(chan struct{})
	go func() {
		updateData()
		for {
			select {
			case <-dataTicker.C:
				updateData()
			case <-done:
				return
			}
		}
	}()

	err := app.SetRoot(mainLayout, true).SetFocus(dashboardPage).Run()
	close(done)
	dataTicker.Stop()
	return err
}

// updateTabInfo refreshes the tab bar, highlighting the active page and
// restating the global shortcuts.
func updateTabInfo() {
	if tabInfo == nil {
		return
	}
	text := "[::b]Tabs:[::-] "
	for i, name := range pageNames {
		if i == currentPageIndex {
			text += fmt.Sprintf("[yellowgreen:black:b]%s[::-] ", name)
		} else {
			text += fmt.Sprintf("%s ", name)
		}
	}
	text += "| [::b]Ctrl+N[::-]:Next | [::b]Ctrl+P[::-]:Previous | [::b]Ctrl+C[::-]:Quit"
	tabInfo.SetText(text)
}
