//go:build tinygo && rp2350

package device

/*
typedef unsigned char uint8_t;
typedef unsigned short uint16_t;
typedef unsigned long uint32_t;
typedef unsigned long uintptr_t;

// Bootrom well-known pointers, RP2350 datasheet 5.4. The lookup
// routine sits one halfword past the function table pointer.
#define BOOTROM_FUNC_TABLE_OFFSET   0x14
#define BOOTROM_TABLE_LOOKUP_OFFSET (BOOTROM_FUNC_TABLE_OFFSET + 2)

#define ROM_TABLE_CODE(c1, c2) ((c1) | ((c2) << 8))

#define ROM_FUNC_REBOOT ROM_TABLE_CODE('R', 'B')

#define RT_FLAG_FUNC_ARM_SEC 0x0004

#define REBOOT2_FLAG_REBOOT_TYPE_BOOTSEL  0x2
#define REBOOT2_FLAG_NO_RETURN_ON_SUCCESS 0x100

typedef void *(*rom_table_lookup_fn)(uint32_t code, uint32_t mask);
typedef int (*rom_reboot_fn)(uint32_t flags, uint32_t delay_ms, uint32_t p0, uint32_t p1);

__attribute__((always_inline))
static void *rom_func_lookup_inline(uint32_t code) {
    rom_table_lookup_fn rom_table_lookup = (rom_table_lookup_fn)(uintptr_t)*(uint16_t *)(BOOTROM_TABLE_LOOKUP_OFFSET);
    return rom_table_lookup(code, RT_FLAG_FUNC_ARM_SEC);
}

void reset_usb_boot(uint32_t usb_activity_gpio_pin_mask, uint32_t disable_interface_mask) {
    rom_reboot_fn func = (rom_reboot_fn)rom_func_lookup_inline(ROM_FUNC_REBOOT);
    func(REBOOT2_FLAG_REBOOT_TYPE_BOOTSEL | REBOOT2_FLAG_NO_RETURN_ON_SUCCESS, 10, disable_interface_mask, usb_activity_gpio_pin_mask);
}
*/
import "C"

// romResetUSBBoot reboots into the BOOTSEL USB bootloader.
func romResetUSBBoot() {
	C.reset_usb_boot(0, 0)
}
