//go:build rp2040

package device

import (
	"device/rp"

	"swarmnode-go/errcode"
)

// ShutdownRetention stops the RTC so the always-on domain is quiet
// when the ROM takes over. The scratch registers are untouched.
func (b *rp2Board) ShutdownRetention() error {
	rp.RTC.CTRL.ClearBits(rp.RTC_CTRL_RTC_ENABLE_Msk)
	for i := 0; i < 1_000_000; i++ {
		if !rp.RTC.CTRL.HasBits(rp.RTC_CTRL_RTC_ACTIVE_Msk) {
			return nil
		}
	}
	return &errcode.E{C: errcode.Timeout, Op: "rtc stop", Msg: "rtc still active"}
}

// ShutdownClocks walks the clock tree back to its reset shape: core on
// the reference clock, peripheral branches gated, PLLs powered down.
// The ROM redoes its own clock setup from there.
func (b *rp2Board) ShutdownClocks() {
	// Glitchless mux back to clk_ref, then wait for the switch.
	rp.CLOCKS.CLK_SYS_CTRL.ClearBits(rp.CLOCKS_CLK_SYS_CTRL_SRC_Msk)
	for !rp.CLOCKS.CLK_SYS_SELECTED.HasBits(0x1) {
	}

	rp.CLOCKS.CLK_USB_CTRL.ClearBits(rp.CLOCKS_CLK_USB_CTRL_ENABLE_Msk)
	rp.CLOCKS.CLK_PERI_CTRL.ClearBits(rp.CLOCKS_CLK_PERI_CTRL_ENABLE_Msk)
	rp.CLOCKS.CLK_ADC_CTRL.ClearBits(rp.CLOCKS_CLK_ADC_CTRL_ENABLE_Msk)
	rp.CLOCKS.CLK_RTC_CTRL.ClearBits(rp.CLOCKS_CLK_RTC_CTRL_ENABLE_Msk)

	// The timebase tick runs off the watchdog block.
	rp.WATCHDOG.TICK.ClearBits(rp.WATCHDOG_TICK_ENABLE_Msk)

	rp.PLL_SYS.PWR.SetBits(rp.PLL_SYS_PWR_PD_Msk | rp.PLL_SYS_PWR_POSTDIVPD_Msk | rp.PLL_SYS_PWR_VCOPD_Msk)
	rp.PLL_USB.PWR.SetBits(rp.PLL_USB_PWR_PD_Msk | rp.PLL_USB_PWR_POSTDIVPD_Msk | rp.PLL_USB_PWR_VCOPD_Msk)
}
