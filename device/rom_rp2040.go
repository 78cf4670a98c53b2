//go:build tinygo && rp2040

package device

/*
typedef unsigned char uint8_t;
typedef unsigned short uint16_t;
typedef unsigned long uint32_t;
typedef unsigned long uintptr_t;

// Bootrom well-known pointers, RP2040 datasheet 2.8.2. The ROM stores
// halfword pointers to its function table and to the lookup routine.
#define BOOTROM_FUNC_TABLE_OFFSET   0x14
#define BOOTROM_TABLE_LOOKUP_OFFSET 0x18

#define ROM_TABLE_CODE(c1, c2) ((c1) | ((c2) << 8))

#define ROM_FUNC_RESET_USB_BOOT ROM_TABLE_CODE('U', 'B')

typedef void *(*rom_table_lookup_fn)(uint16_t *table, uint32_t code);
typedef void (*rom_reset_usb_boot_fn)(uint32_t usb_activity_gpio_pin_mask, uint32_t disable_interface_mask);

__attribute__((always_inline))
static void *rom_func_lookup_inline(uint32_t code) {
    rom_table_lookup_fn rom_table_lookup = (rom_table_lookup_fn)(uintptr_t)*(uint16_t *)(BOOTROM_TABLE_LOOKUP_OFFSET);
    uint16_t *func_table = (uint16_t *)(uintptr_t)*(uint16_t *)(BOOTROM_FUNC_TABLE_OFFSET);
    return rom_table_lookup(func_table, code);
}

void reset_usb_boot(uint32_t usb_activity_gpio_pin_mask, uint32_t disable_interface_mask) {
    rom_reset_usb_boot_fn func = (rom_reset_usb_boot_fn)rom_func_lookup_inline(ROM_FUNC_RESET_USB_BOOT);
    func(usb_activity_gpio_pin_mask, disable_interface_mask);
}
*/
import "C"

// romResetUSBBoot reboots into the BOOTSEL USB bootloader.
func romResetUSBBoot() {
	C.reset_usb_boot(0, 0)
}
