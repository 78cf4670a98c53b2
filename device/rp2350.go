//go:build rp2350

package device

import "device/rp"

// ShutdownRetention is a no-op here. The chip keeps its always-on
// state in the powman block, which the ROM owns across a reboot.
func (b *rp2Board) ShutdownRetention() error { return nil }

// ShutdownClocks walks the clock tree back to its reset shape: core on
// the reference clock, peripheral branches gated, PLLs powered down.
// The ROM redoes its own clock setup from there. The timebase ticks
// live in the TICKS block and the ROM reprograms them itself.
func (b *rp2Board) ShutdownClocks() {
	// Glitchless mux back to clk_ref, then wait for the switch.
	rp.CLOCKS.CLK_SYS_CTRL.ClearBits(rp.CLOCKS_CLK_SYS_CTRL_SRC_Msk)
	for !rp.CLOCKS.CLK_SYS_SELECTED.HasBits(0x1) {
	}

	rp.CLOCKS.CLK_USB_CTRL.ClearBits(rp.CLOCKS_CLK_USB_CTRL_ENABLE_Msk)
	rp.CLOCKS.CLK_PERI_CTRL.ClearBits(rp.CLOCKS_CLK_PERI_CTRL_ENABLE_Msk)
	rp.CLOCKS.CLK_ADC_CTRL.ClearBits(rp.CLOCKS_CLK_ADC_CTRL_ENABLE_Msk)

	rp.PLL_SYS.PWR.SetBits(rp.PLL_SYS_PWR_PD_Msk | rp.PLL_SYS_PWR_POSTDIVPD_Msk | rp.PLL_SYS_PWR_VCOPD_Msk)
	rp.PLL_USB.PWR.SetBits(rp.PLL_USB_PWR_PD_Msk | rp.PLL_USB_PWR_POSTDIVPD_Msk | rp.PLL_USB_PWR_VCOPD_Msk)
}
