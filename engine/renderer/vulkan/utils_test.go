package vulkan

import (
	"errors"
	"sync"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVulkanResultString(t *testing.T) {
	assert.Equal(t, "VK_SUCCESS", VulkanResultString(vk.Success))
	assert.Equal(t, "VK_ERROR_DEVICE_LOST", VulkanResultString(vk.ErrorDeviceLost))
	assert.Equal(t, "VkResult(12345)", VulkanResultString(vk.Result(12345)))
}

func TestCheck(t *testing.T) {
	assert.NoError(t, check("vkCreateFence", vk.Success))
	err := check("vkCreateFence", vk.ErrorOutOfHostMemory)
	require.Error(t, err)
	assert.Equal(t, "vkCreateFence failed with VK_ERROR_OUT_OF_HOST_MEMORY", err.Error())
}

func TestVulkanSafeString(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "abc\x00", VulkanSafeString("abc"))
	assert.Equal(t, "abc\x00", VulkanSafeString("abc\x00"))

	in := []string{"a", "b\x00"}
	out := VulkanSafeStrings(in)
	assert.Equal(t, []string{"a\x00", "b\x00"}, out)
	assert.Equal(t, "a", in[0], "input is not modified")
}

func TestFindFirstZeroInByteArray(t *testing.T) {
	assert.Equal(t, 3, FindFirstZeroInByteArray([]byte{'a', 'b', 'c', 0, 'd'}))
	assert.Equal(t, 0, FindFirstZeroInByteArray([]byte{0}))
	assert.Equal(t, 2, FindFirstZeroInByteArray([]byte{'a', 'b'}))
}

func TestLayoutFor(t *testing.T) {
	for state, layout := range map[metadata.ResourceState]vk.ImageLayout{
		metadata.ResourceStateCommon:              vk.ImageLayoutGeneral,
		metadata.ResourceStatePresent:             vk.ImageLayoutGeneral,
		metadata.ResourceStateRenderTarget:        vk.ImageLayoutGeneral,
		metadata.ResourceStateDepthWrite:          vk.ImageLayoutGeneral,
		metadata.ResourceStateCopyDest:            vk.ImageLayoutTransferDstOptimal,
		metadata.ResourceStatePixelShaderResource: vk.ImageLayoutShaderReadOnlyOptimal,
	} {
		assert.Equal(t, layout, layoutFor(state), "state %d", state)
	}
}

func TestLockPoolSerializesGroups(t *testing.T) {
	pool := NewVulkanLockPool()
	var wg sync.WaitGroup
	inside, maxInside, total := 0, 0, 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.SafeCall(MemoryManagement, func() error {
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				total++
				inside--
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 16, total)
}

func TestLockPoolQueueCallReturnsError(t *testing.T) {
	pool := NewVulkanLockPool()
	boom := errors.New("boom")
	assert.ErrorIs(t, pool.SafeQueueCall(3, func() error { return boom }), boom)
	assert.NoError(t, pool.SafeQueueCall(3, func() error { return nil }))
}
